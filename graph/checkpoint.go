//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

package graph

import "trpc.group/trpc-go/trpc-hitl-go/graph/checkpoint"

// Checkpoint is the persisted position of a session.
type Checkpoint = checkpoint.Checkpoint

// InterruptState describes a suspended node.
type InterruptState = checkpoint.InterruptState

// CheckpointSaver persists checkpoints.
type CheckpointSaver = checkpoint.Saver
