package session_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrivaani/agrivaani/pkg/adapters/memory"
	"github.com/agrivaani/agrivaani/pkg/domain"
	"github.com/agrivaani/agrivaani/pkg/session"
)

func TestManager_UpdateCreatesSession(t *testing.T) {
	mgr := session.NewManager(memory.NewStore())
	ctx := context.Background()

	err := mgr.Update(ctx, "farmer-1", func(s *domain.Session) (*domain.Session, error) {
		require.Nil(t, s, "first update must see no session")
		s = domain.NewSession("farmer-1", "kcc")
		s.SetAnswer("state", "Maharashtra")
		return s, nil
	})
	require.NoError(t, err)

	sess, err := mgr.Peek(ctx, "farmer-1")
	require.NoError(t, err)
	v, ok := sess.Answer("state")
	assert.True(t, ok)
	assert.Equal(t, "Maharashtra", v)
}

func TestManager_UpdateNilLeavesStoreUntouched(t *testing.T) {
	mgr := session.NewManager(memory.NewStore())
	ctx := context.Background()

	err := mgr.Update(ctx, "farmer-2", func(s *domain.Session) (*domain.Session, error) {
		return nil, nil
	})
	require.NoError(t, err)

	_, err = mgr.Peek(ctx, "farmer-2")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_ConcurrentUpdatesSerialize(t *testing.T) {
	mgr := session.NewManager(memory.NewStore())
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_ = mgr.Update(ctx, "farmer-3", func(s *domain.Session) (*domain.Session, error) {
				if s == nil {
					s = domain.NewSession("farmer-3", "kcc")
				}
				s.Answers = append(s.Answers, domain.AnswerRecord{Key: "tick", Value: "x"})
				return s, nil
			})
		}()
	}
	wg.Wait()

	sess, err := mgr.Peek(ctx, "farmer-3")
	require.NoError(t, err)
	assert.Len(t, sess.Answers, workers, "no update may be lost to interleaving")
}

func TestManager_DistinctKeysDoNotBlock(t *testing.T) {
	mgr := session.NewManager(memory.NewStore())
	ctx := context.Background()

	release := make(chan struct{})
	holding := make(chan struct{})

	go func() {
		_ = mgr.WithLock(ctx, "slow-key", func(ctx context.Context) error {
			close(holding)
			<-release
			return nil
		})
	}()

	<-holding
	// A different key must proceed while slow-key is held.
	err := mgr.Update(ctx, "fast-key", func(s *domain.Session) (*domain.Session, error) {
		return domain.NewSession("fast-key", "kcc"), nil
	})
	require.NoError(t, err)
	close(release)
}
