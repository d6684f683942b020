// Casewise
// Copyright (C) 2025 Casewise (engineering@casewise.dev)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/casewise/casewise/services/llm"
	"github.com/casewise/casewise/services/orchestrator/datatypes"
)

// ===== Stream states =====

// streamState tracks the turn through its lifecycle. Transitions:
//
//	OPENED → UPSTREAM_CALLED → {STREAMING | TIMED_OUT | FAILED}
//	       → FLUSHING → FINALIZING → CLOSED
type streamState int

const (
	stateOpened streamState = iota
	stateUpstreamCalled
	stateStreaming
	stateTimedOut
	stateFailed
	stateFlushing
	stateFinalizing
	stateClosed
)

func (s streamState) String() string {
	switch s {
	case stateOpened:
		return "OPENED"
	case stateUpstreamCalled:
		return "UPSTREAM_CALLED"
	case stateStreaming:
		return "STREAMING"
	case stateTimedOut:
		return "TIMED_OUT"
	case stateFailed:
		return "FAILED"
	case stateFlushing:
		return "FLUSHING"
	case stateFinalizing:
		return "FINALIZING"
	case stateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// ===== Timeouts =====

const (
	// upstreamConnectTimeout bounds the wait for the completion call to
	// return response headers.
	upstreamConnectTimeout = 8 * time.Second

	// streamStallTimeout bounds each individual read once the stream is
	// open. A connection that opened but stopped delivering data trips
	// this, not the connect timeout.
	streamStallTimeout = 15 * time.Second
)

// ===== Tool-call accumulation =====

// ToolCallBuffer accumulates streamed function-call fragments. The model
// delivers the name and the argument JSON in arbitrary-sized chunks
// spread across deltas; nothing here is parseable until the stream ends.
type ToolCallBuffer struct {
	Name string
	args strings.Builder
}

func (b *ToolCallBuffer) append(name, argChunk string) {
	if name != "" {
		b.Name = name
	}
	b.args.WriteString(argChunk)
}

// Arguments returns the accumulated argument JSON string.
func (b *ToolCallBuffer) Arguments() string {
	return b.args.String()
}

// Empty reports whether any fragment was ever buffered.
func (b *ToolCallBuffer) Empty() bool {
	return b.Name == "" && b.args.Len() == 0
}

// ===== Results =====

// StreamResult is what one upstream stream produced after FINALIZING.
type StreamResult struct {
	// Reply is the full assistant text. Never empty: a fallback is
	// substituted when the stream produced nothing.
	Reply string

	// ToolCall holds the accumulated function-call fragments, nil when
	// the model called no tool.
	ToolCall *ToolCallBuffer

	// TokenCount is the number of token events emitted to the client.
	TokenCount int

	// TimeToFirstToken is zero when no genuine token ever arrived.
	TimeToFirstToken time.Duration

	// FallbackReason is non-empty when Reply is a canned substitution:
	// "timeout", "upstream_error", "stall", or "empty_stream".
	FallbackReason string
}

// ===== Processor =====

// StreamProcessor consumes one upstream completion stream and re-emits
// tokens to the client.
//
// # Description
//
// Owns the byte-level decode of the upstream SSE stream: carry-over
// buffered newline splitting, `data: {...}` line parsing, and `[DONE]`
// detection. Malformed lines are skipped, never fatal. The upstream
// connect is raced against an 8s timeout and every subsequent read
// against a 15s stall timeout; either trips into the fallback path with
// whatever accumulated so far treated as final.
//
// # Assumptions
//
//   - onToken failures mean the client went away; they are counted and
//     ignored, the stream still runs to completion for persistence.
type StreamProcessor struct {
	upstream       llm.UpstreamClient
	logger         *slog.Logger
	connectTimeout time.Duration
	stallTimeout   time.Duration
}

// NewStreamProcessor wires a processor over the upstream client.
func NewStreamProcessor(upstream llm.UpstreamClient, logger *slog.Logger) *StreamProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamProcessor{
		upstream:       upstream,
		logger:         logger,
		connectTimeout: upstreamConnectTimeout,
		stallTimeout:   streamStallTimeout,
	}
}

type connectResult struct {
	body io.ReadCloser
	err  error
}

type readChunk struct {
	data []byte
	err  error
}

// Run executes one turn's stream. onToken is called for every emitted
// token, including the single fallback token when the stream produced no
// text; its errors are swallowed.
//
// # Outputs
//
//	*StreamResult - always non-nil with a non-empty Reply.
func (p *StreamProcessor) Run(
	ctx context.Context,
	req openai.ChatCompletionRequest,
	mode datatypes.ConversationMode,
	onToken func(string) error,
) *StreamResult {
	state := stateOpened
	started := time.Now()
	result := &StreamResult{}
	tool := &ToolCallBuffer{}
	var reply strings.Builder
	clientGone := false

	emit := func(token string) {
		if err := onToken(token); err != nil {
			if !clientGone {
				clientGone = true
				p.logger.Debug("client write failed, continuing for persistence", "error", err)
			}
			return
		}
	}

	finalize := func(reason string) *StreamResult {
		// FLUSHING happened at the call site; this is FINALIZING.
		result.Reply = reply.String()
		if result.Reply == "" {
			if reason == "" {
				reason = "empty_stream"
			}
			result.Reply = FallbackMessage(mode)
			emit(result.Reply)
			result.TokenCount++
		}
		result.FallbackReason = reason
		if !tool.Empty() {
			result.ToolCall = tool
		}
		p.logger.Debug("stream finalized",
			"state", stateClosed.String(),
			"tokens", result.TokenCount,
			"fallback_reason", reason,
			"duration_ms", time.Since(started).Milliseconds(),
		)
		return result
	}

	// UPSTREAM_CALLED: race the connect against its timeout.
	state = stateUpstreamCalled
	connCh := make(chan connectResult, 1)
	go func() {
		body, err := p.upstream.StreamChat(ctx, req)
		connCh <- connectResult{body: body, err: err}
	}()

	var body io.ReadCloser
	select {
	case res := <-connCh:
		if res.err != nil {
			state = stateFailed
			p.logger.Warn("upstream call failed", "state", state.String(), "error", res.err)
			return finalize("upstream_error")
		}
		body = res.body
	case <-time.After(p.connectTimeout):
		state = stateTimedOut
		p.logger.Warn("upstream connect timed out", "state", state.String(), "timeout", p.connectTimeout)
		// Close the late connection if it ever lands.
		go func() {
			if res := <-connCh; res.body != nil {
				_ = res.body.Close()
			}
		}()
		return finalize("timeout")
	}
	defer body.Close()

	// STREAMING: reads happen on a dedicated goroutine so each one can be
	// raced against the stall timeout.
	state = stateStreaming
	readerDone := make(chan struct{})
	defer close(readerDone)
	reads := make(chan readChunk)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := body.Read(buf)
			chunk := readChunk{err: err}
			if n > 0 {
				chunk.data = append([]byte(nil), buf[:n]...)
			}
			select {
			case reads <- chunk:
			case <-readerDone:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	carry := ""
	firstToken := func() {
		if result.TimeToFirstToken == 0 {
			result.TimeToFirstToken = time.Since(started)
		}
	}

	processLine := func(line string) (done bool) {
		line = strings.TrimSuffix(strings.TrimSpace(line), "\r")
		if line == "" {
			return false
		}
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			return false
		}
		payload = strings.TrimSpace(payload)
		if payload == "[DONE]" {
			return true
		}
		var delta openai.ChatCompletionStreamResponse
		if err := json.Unmarshal([]byte(payload), &delta); err != nil {
			p.logger.Debug("skipping malformed stream line", "error", err)
			return false
		}
		if len(delta.Choices) == 0 {
			return false
		}
		d := delta.Choices[0].Delta
		if d.Content != "" {
			firstToken()
			reply.WriteString(d.Content)
			emit(d.Content)
			result.TokenCount++
		}
		for _, tc := range d.ToolCalls {
			if tc.Function.Name != "" || tc.Function.Arguments != "" {
				tool.append(tc.Function.Name, tc.Function.Arguments)
			}
		}
		return false
	}

	stalled := false
	fallbackReason := ""
streamLoop:
	for {
		select {
		case chunk := <-reads:
			if len(chunk.data) > 0 {
				carry += string(chunk.data)
				for {
					idx := strings.IndexByte(carry, '\n')
					if idx < 0 {
						break
					}
					line := carry[:idx]
					carry = carry[idx+1:]
					if processLine(line) {
						break streamLoop
					}
				}
			}
			if chunk.err != nil {
				if chunk.err != io.EOF {
					p.logger.Warn("upstream read error", "error", chunk.err)
					if reply.Len() == 0 {
						fallbackReason = "upstream_error"
					}
				}
				break streamLoop
			}
		case <-time.After(p.stallTimeout):
			stalled = true
			p.logger.Warn("upstream stream stalled", "stall_timeout", p.stallTimeout, "tokens_so_far", result.TokenCount)
			break streamLoop
		}
	}

	// FLUSHING: best-effort parse of any residual partial line.
	state = stateFlushing
	if carry != "" {
		p.logger.Debug("flushing residual buffer", "state", state.String(), "bytes", len(carry))
		_ = processLine(carry)
	}

	if stalled && reply.Len() == 0 {
		fallbackReason = "stall"
	}
	return finalize(fallbackReason)
}
