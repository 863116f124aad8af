/*
Package agrivaani is a guided-conversation engine for walking farmers through
Indian agricultural scheme applications and eligibility questionnaires.

Flows are declarative YAML graphs of question nodes. The engine owns session
state and advances one node per turn; ambiguous answers route through an
external classifier, document nodes verify uploads, and eligibility flows end
with a grounded scheme recommendation followed by free-form Q&A.

# Usage

Build an Assistant and drive it one turn at a time. The canonical request and
response shapes are the same ones the HTTP API serves.

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/agrivaani/agrivaani"
		"github.com/agrivaani/agrivaani/pkg/domain"
	)

	func main() {
		assistant, err := agrivaani.New()
		if err != nil {
			log.Fatal(err)
		}

		ctx := context.Background()
		resp, err := assistant.Turn(ctx, domain.TurnRequest{
			FlowID:     "kcc",
			SessionKey: "farmer-42",
			RawAnswer:  "reset",
		})
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(resp.PromptText) // first question of the flow

		resp, err = assistant.Turn(ctx, domain.TurnRequest{
			FlowID:     "kcc",
			SessionKey: "farmer-42",
			RawAnswer:  "Ramesh Kumar",
		})
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(resp.PromptText) // next question
	}

Sessions persist across turns. Swap the in-memory default for Redis or SQLite
with WithStore, and wire classification, translation, document verification
and recommendations with the service options.
*/
package agrivaani
