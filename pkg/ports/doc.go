// Package ports defines the interfaces between the conversation core and its
// collaborators: the session store, the per-key locker, and the external
// services (classifier, translator, document verifier, completion service,
// evidence retriever, speech). Adapters implement these; the core only ever
// depends on the interfaces.
package ports
