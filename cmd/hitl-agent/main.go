//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

// Command hitl-agent runs a tool-using chat agent that can stop and ask a
// person for help, then pick up where it left off.
package main

func main() {
	Execute()
}
