//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

// Package checkpointtest holds the behaviour every checkpoint.Saver must show.
package checkpointtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-hitl-go/graph/checkpoint"
)

// RunSaverContract is a reusable test suite that verifies a saver complies
// with checkpoint.Saver. Every subtest works on its own session.
func RunSaverContract(t *testing.T, saver checkpoint.Saver) {
	t.Helper()
	ctx := context.Background()

	newSession := func() string { return "contract-" + uuid.NewString() }
	state := func(n int) json.RawMessage {
		return json.RawMessage(fmt.Sprintf(`{"messages":[],"n":%d}`, n))
	}

	t.Run("Latest_Absent", func(t *testing.T) {
		c, err := saver.Latest(ctx, newSession())
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("Put_Latest_RoundTrip", func(t *testing.T) {
		sid := newSession()
		c := checkpoint.New(sid, 1, checkpoint.SourceInterrupt, state(1), "tools")
		c.Interrupt = &checkpoint.InterruptState{
			NodeID:   "tools",
			Payload:  map[string]any{"query": "help"},
			Progress: json.RawMessage(`{"completed":[]}`),
			Step:     1,
		}
		require.NoError(t, saver.Put(ctx, c))

		got, err := saver.Latest(ctx, sid)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, c.ID, got.ID)
		assert.Equal(t, c.Step, got.Step)
		assert.Equal(t, c.Source, got.Source)
		assert.Equal(t, c.NextNode, got.NextNode)
		assert.Equal(t, string(c.State), string(got.State))
		require.NotNil(t, got.Interrupt)
		assert.True(t, got.Interrupt.Pending())
		assert.Equal(t, "tools", got.Interrupt.NodeID)
		assert.Equal(t, map[string]any{"query": "help"}, got.Interrupt.Payload)
		assert.JSONEq(t, `{"completed":[]}`, string(got.Interrupt.Progress))
	})

	t.Run("Put_Overwrites", func(t *testing.T) {
		sid := newSession()
		first := checkpoint.New(sid, 0, checkpoint.SourceLoop, state(0), "agent")
		require.NoError(t, saver.Put(ctx, first))
		second := first.Next(1, checkpoint.SourceLoop, state(1), "tools")
		require.NoError(t, saver.Put(ctx, second))

		got, err := saver.Latest(ctx, sid)
		require.NoError(t, err)
		assert.Equal(t, second.ID, got.ID)
		assert.Equal(t, first.ID, got.ParentID)
		assert.Nil(t, got.Interrupt)
	})

	t.Run("Reads_AreCopies", func(t *testing.T) {
		sid := newSession()
		require.NoError(t, saver.Put(ctx, checkpoint.New(sid, 0, checkpoint.SourceLoop, state(0), "agent")))
		got, err := saver.Latest(ctx, sid)
		require.NoError(t, err)
		got.NextNode = "mutated"
		got.State[0] = '['

		again, err := saver.Latest(ctx, sid)
		require.NoError(t, err)
		assert.Equal(t, "agent", again.NextNode)
		assert.Equal(t, string(state(0)), string(again.State))
	})

	t.Run("List_NewestFirst", func(t *testing.T) {
		sid := newSession()
		prev := checkpoint.New(sid, -1, checkpoint.SourceInput, state(-1), "agent")
		require.NoError(t, saver.Put(ctx, prev))
		for i := 0; i < 3; i++ {
			next := prev.Next(i, checkpoint.SourceLoop, state(i), "agent")
			require.NoError(t, saver.Put(ctx, next))
			prev = next
		}
		all, err := saver.List(ctx, sid, 0)
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, prev.ID, all[0].ID)
		assert.Equal(t, -1, all[3].Step)

		two, err := saver.List(ctx, sid, 2)
		require.NoError(t, err)
		require.Len(t, two, 2)
		assert.Equal(t, 2, two[0].Step)
		assert.Equal(t, 1, two[1].Step)

		none, err := saver.List(ctx, newSession(), 0)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("Delete", func(t *testing.T) {
		sid := newSession()
		require.NoError(t, saver.Put(ctx, checkpoint.New(sid, 0, checkpoint.SourceLoop, state(0), "agent")))
		require.NoError(t, saver.Delete(ctx, sid))
		got, err := saver.Latest(ctx, sid)
		require.NoError(t, err)
		assert.Nil(t, got)
		// Deleting an unknown session is not an error.
		require.NoError(t, saver.Delete(ctx, newSession()))
	})

	t.Run("Sessions_Isolated", func(t *testing.T) {
		a, b := newSession(), newSession()
		require.NoError(t, saver.Put(ctx, checkpoint.New(a, 0, checkpoint.SourceLoop, state(10), "agent")))
		require.NoError(t, saver.Put(ctx, checkpoint.New(b, 0, checkpoint.SourceLoop, state(20), "tools")))
		ga, err := saver.Latest(ctx, a)
		require.NoError(t, err)
		gb, err := saver.Latest(ctx, b)
		require.NoError(t, err)
		assert.Equal(t, "agent", ga.NextNode)
		assert.Equal(t, "tools", gb.NextNode)
	})

	t.Run("Put_Invalid", func(t *testing.T) {
		assert.Error(t, saver.Put(ctx, nil))
		assert.Error(t, saver.Put(ctx, &checkpoint.Checkpoint{Version: checkpoint.Version}))
	})

	t.Run("Concurrent_Sessions", func(t *testing.T) {
		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		sessions := make([]string, workers)
		for i := range sessions {
			sessions[i] = newSession()
		}
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				prev := checkpoint.New(sessions[i], -1, checkpoint.SourceInput, state(-1), "agent")
				if err := saver.Put(ctx, prev); err != nil {
					errs <- err
					return
				}
				for step := 0; step < 5; step++ {
					next := prev.Next(step, checkpoint.SourceLoop, state(step), "agent")
					if err := saver.Put(ctx, next); err != nil {
						errs <- err
						return
					}
					if _, err := saver.Latest(ctx, sessions[i]); err != nil {
						errs <- err
						return
					}
					prev = next
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		for _, sid := range sessions {
			got, err := saver.Latest(ctx, sid)
			require.NoError(t, err)
			assert.Equal(t, 4, got.Step)
		}
	})
}
