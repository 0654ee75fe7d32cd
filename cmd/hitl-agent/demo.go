//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"trpc.group/trpc-go/trpc-hitl-go/graph"
	"trpc.group/trpc-go/trpc-hitl-go/model"
	"trpc.group/trpc-go/trpc-hitl-go/tool/human"
)

const defaultQuestion = "I need some expert guidance for building an AI agent. " +
	"Could you request assistance for me?"

var demoCmd = &cobra.Command{
	Use:   "demo [question]",
	Short: "Ask the agent a question and answer its requests for help",
	Long: `Runs the agent until it asks a human for help, reads the answer from
--answer or stdin, and resumes the session until the agent is done.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		flush, err := startTracing(ctx, cmd)
		if err != nil {
			return err
		}
		defer flush()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		question := defaultQuestion
		if len(args) == 1 {
			question = args[0]
		}
		d := &demo{executor: a.executor, out: cmd.OutOrStdout(), in: bufio.NewScanner(cmd.InOrStdin())}
		if cmd.Flags().Changed("answer") {
			answer, _ := cmd.Flags().GetString("answer")
			d.answers = []string{answer}
		}
		return d.run(ctx, sessionFlag(cmd), question)
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().StringP("answer", "a", "", "Answer to the first request for help; later ones are read from stdin")
}

// demo drives one session through every suspension.
type demo struct {
	executor *graph.Executor
	out      io.Writer
	in       *bufio.Scanner
	// answers are used before stdin is read.
	answers []string
}

func (d *demo) run(ctx context.Context, sessionID, question string) error {
	fmt.Fprintf(d.out, "[user] %s\n", question)
	input := graph.State{graph.StateKeyMessages: []model.Message{model.NewUserMessage(question)}}
	result, err := d.executor.Invoke(ctx, sessionID, input)
	for {
		if result != nil {
			printEvents(d.out, result.Events)
		}
		if err != nil {
			return err
		}
		if !result.Interrupted() {
			return nil
		}
		var answer string
		if answer, err = d.nextAnswer(); err != nil {
			return err
		}
		fmt.Fprintf(d.out, "[human] %s\n", answer)
		cmd := graph.NewResumeCommand(map[string]any{human.DataKey: answer})
		result, err = d.executor.InvokeResume(ctx, sessionID, cmd)
	}
}

func (d *demo) nextAnswer() (string, error) {
	if len(d.answers) > 0 {
		answer := d.answers[0]
		d.answers = d.answers[1:]
		return answer, nil
	}
	fmt.Fprint(d.out, "answer> ")
	if !d.in.Scan() {
		if err := d.in.Err(); err != nil {
			return "", fmt.Errorf("failed to read answer: %w", err)
		}
		return "", errors.New("no answer given")
	}
	return strings.TrimSpace(d.in.Text()), nil
}

func printEvents(out io.Writer, events []*graph.Event) {
	for _, ev := range events {
		switch ev.Type {
		case graph.EventNodeComplete:
			msgs := ev.State.Messages()
			if ev.NodeID == toolsNode {
				// The tools node appends one message per call.
				first := len(msgs)
				for first > 0 && msgs[first-1].Role == model.RoleTool {
					first--
				}
				for _, m := range msgs[first:] {
					printMessage(out, m)
				}
				continue
			}
			if len(msgs) > 0 {
				printMessage(out, msgs[len(msgs)-1])
			}
		case graph.EventInterrupt:
			fmt.Fprintf(out, "next: %s\n", ev.NodeID)
			printInterrupt(out, ev.Interrupt)
		}
	}
}

func printMessage(out io.Writer, m model.Message) {
	switch m.Role {
	case model.RoleTool:
		fmt.Fprintf(out, "[tool:%s] %s\n", m.ToolName, m.Content)
	default:
		if m.Content != "" {
			fmt.Fprintf(out, "[%s] %s\n", m.Role, m.Content)
		}
		for _, call := range m.ToolCalls {
			fmt.Fprintf(out, "[%s] calls %s(%s)\n", m.Role, call.Function.Name, call.Function.Arguments)
		}
	}
}

func printInterrupt(out io.Writer, in *graph.InterruptState) {
	if in == nil {
		return
	}
	if m, ok := in.Payload.(map[string]any); ok {
		if q, ok := m[human.QueryKey]; ok {
			fmt.Fprintf(out, "help requested by %s: %v\n", in.NodeID, q)
			return
		}
	}
	b, err := json.Marshal(in.Payload)
	if err != nil {
		fmt.Fprintf(out, "help requested by %s: %v\n", in.NodeID, in.Payload)
		return
	}
	fmt.Fprintf(out, "help requested by %s: %s\n", in.NodeID, b)
}
