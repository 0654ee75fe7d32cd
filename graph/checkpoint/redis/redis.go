//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

// Package redis provides a checkpoint saver backed by Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"trpc.group/trpc-go/trpc-hitl-go/graph/checkpoint"
)

var _ checkpoint.Saver = (*Saver)(nil)

const defaultPrefix = "hitl:"

// Saver implements checkpoint.Saver using Redis. A session owns two keys:
// a string holding the latest checkpoint and a list of the retained
// history, newest first. Both are written in one MULTI/EXEC.
type Saver struct {
	client                   *backend.Client
	prefix                   string
	ttl                      time.Duration
	maxCheckpointsPerSession int
}

// Option configures a Saver.
type Option func(*Saver)

// WithTTL sets the expiration for session keys. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Saver) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Saver) {
		s.prefix = prefix
	}
}

// WithMaxCheckpointsPerSession sets the maximum number of checkpoints kept per session.
func WithMaxCheckpointsPerSession(max int) Option {
	return func(s *Saver) {
		if max > 0 {
			s.maxCheckpointsPerSession = max
		}
	}
}

// New creates a Redis saver connected to address.
func New(address, password string, db int, opts ...Option) *Saver {
	return NewFromClient(backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewFromClient creates a Redis saver from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Saver {
	s := &Saver{
		client:                   client,
		prefix:                   defaultPrefix,
		maxCheckpointsPerSession: checkpoint.DefaultMaxCheckpointsPerSession,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Saver) latestKey(sessionID string) string {
	return s.prefix + "checkpoint:" + sessionID
}

func (s *Saver) historyKey(sessionID string) string {
	return s.prefix + "history:" + sessionID
}

// Put implements checkpoint.Saver.
func (s *Saver) Put(ctx context.Context, c *checkpoint.Checkpoint) error {
	data, err := checkpoint.Encode(c)
	if err != nil {
		return err
	}
	latest, history := s.latestKey(c.SessionID), s.historyKey(c.SessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.Set(ctx, latest, data, s.ttl)
		pipe.LPush(ctx, history, data)
		pipe.LTrim(ctx, history, 0, int64(s.maxCheckpointsPerSession-1))
		if s.ttl > 0 {
			pipe.Expire(ctx, history, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint to redis: %w", err)
	}
	return nil
}

// Latest implements checkpoint.Saver.
func (s *Saver) Latest(ctx context.Context, sessionID string) (*checkpoint.Checkpoint, error) {
	val, err := s.client.Get(ctx, s.latestKey(sessionID)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint from redis: %w", err)
	}
	return checkpoint.Decode(val)
}

// List implements checkpoint.Saver.
func (s *Saver) List(ctx context.Context, sessionID string, limit int) ([]*checkpoint.Checkpoint, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	vals, err := s.client.LRange(ctx, s.historyKey(sessionID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints from redis: %w", err)
	}
	out := make([]*checkpoint.Checkpoint, 0, len(vals))
	for _, v := range vals {
		c, err := checkpoint.Decode([]byte(v))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Delete implements checkpoint.Saver.
func (s *Saver) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.latestKey(sessionID), s.historyKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete checkpoints from redis: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (s *Saver) Close() error {
	return s.client.Close()
}
