// Casewise
// Copyright (C) 2025 Casewise (engineering@casewise.dev)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP surface of the chat orchestrator.
//
// The central entry point is ChatHandler.HandleChat, which serves
// POST /api/ai/chat:
//
//	Validate → Resolve mode/practice → {Short-circuit | Stream} →
//	Reconcile tool calls → Enforce contract → Merge state → Persist
//
// The short-circuit path answers deterministically matched questions with
// a plain JSON response and no model call. Every other turn opens an SSE
// stream to the client while the upstream completion stream is consumed
// and re-emitted token by token.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/casewise/casewise/pkg/extensions"
	"github.com/casewise/casewise/services/llm"
	"github.com/casewise/casewise/services/orchestrator/datatypes"
	"github.com/casewise/casewise/services/orchestrator/middleware"
	"github.com/casewise/casewise/services/orchestrator/observability"
	"github.com/casewise/casewise/services/orchestrator/services"
	"github.com/casewise/casewise/services/orchestrator/store"
)

// persistTimeout bounds the detached persistence writes that run after
// the client stream is settled.
const persistTimeout = 30 * time.Second

// ChatHandler serves the conversational AI endpoint.
type ChatHandler interface {
	// HandleChat handles POST /api/ai/chat.
	HandleChat(c *gin.Context)
}

type chatHandler struct {
	store     store.Store
	practices *services.PracticeCache
	processor *StreamProcessor
	model     string
	logger    *slog.Logger
	metrics   *observability.ChatMetrics
	audit     extensions.AuditLogger
	tracer    trace.Tracer
}

// NewChatHandler wires the chat endpoint.
//
// # Inputs
//
//   - st: conversation + practice persistence. Must not be nil.
//   - practices: read-through practice cache over st.
//   - upstream: streaming completion client.
//   - model: upstream model name sent on every request.
//   - logger: structured logger; nil falls back to slog.Default().
//   - metrics: chat metrics; nil disables recording.
//   - audit: audit sink; nil falls back to the no-op logger.
func NewChatHandler(
	st store.Store,
	practices *services.PracticeCache,
	upstream llm.UpstreamClient,
	model string,
	logger *slog.Logger,
	metrics *observability.ChatMetrics,
	audit extensions.AuditLogger,
) ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if audit == nil {
		audit = &extensions.NopAuditLogger{}
	}
	return &chatHandler{
		store:     st,
		practices: practices,
		processor: NewStreamProcessor(upstream, logger),
		model:     model,
		logger:    logger,
		metrics:   metrics,
		audit:     audit,
		tracer:    otel.Tracer("casewise/orchestrator"),
	}
}

var _ ChatHandler = (*chatHandler)(nil)

// turnContext is the resolved per-request state, computed once and used
// consistently for the rest of the turn.
type turnContext struct {
	req      *datatypes.ChatRequest
	auth     *extensions.AuthInfo
	conv     *store.Conversation
	practice *datatypes.PracticeDetails

	mode             datatypes.ConversationMode
	isIntakeMode     bool
	isOnboardingMode bool
	isGeneralQA      bool
	intakeSubmitted  bool
}

// modeSelector reports whether the persisted reply should carry the
// mode-selector affordance: general QA against a public practice whose
// intake has not been submitted yet.
func (tc *turnContext) modeSelector() bool {
	return tc.isGeneralQA &&
		tc.practice != nil &&
		tc.practice.IsPublic &&
		!tc.intakeSubmitted
}

func (h *chatHandler) HandleChat(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "chat.turn")
	defer span.End()

	// ===== Validate =====

	var req datatypes.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.recordError("unknown", observability.ErrorCodeValidation)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		h.recordError("unknown", observability.ErrorCodeValidation)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	authInfo := middleware.GetAuthInfo(c)
	if authInfo == nil {
		h.recordError("unknown", observability.ErrorCodeForbidden)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	// ===== Resolve conversation and participant =====

	conv, err := h.store.GetConversation(ctx, req.ConversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		h.logger.Error("conversation lookup failed", "conversation_id", req.ConversationID, "error", err)
		h.recordError("unknown", observability.ErrorCodeInternal)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if !conv.HasParticipant(authInfo.UserID) {
		h.recordError("unknown", observability.ErrorCodeForbidden)
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant in this conversation"})
		return
	}

	tc := h.resolveTurn(ctx, &req, authInfo, conv)
	span.SetAttributes(
		attribute.String("chat.mode", string(tc.mode)),
		attribute.String("chat.conversation_id", req.ConversationID),
	)

	h.auditEvent(ctx, extensions.EventAIMessageReceived, tc, req.LastUserMessage())

	// ===== Fast path: deterministic rules =====

	var prevAssistant string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "assistant" {
			prevAssistant = req.Messages[i].Content
			break
		}
	}
	sc, matched := EvaluateShortCircuit(shortCircuitInput{
		UserMessage:       req.LastUserMessage(),
		PrevAssistant:     prevAssistant,
		PracticeRequested: req.PracticeSlug != "",
		Practice:          tc.practice,
		Intake:            conv.Metadata.Intake,
		IsIntakeMode:      tc.isIntakeMode,
		IsOnboardingMode:  tc.isOnboardingMode,
		IsGeneralQA:       tc.isGeneralQA,
	})
	if matched {
		h.handleShortCircuit(c, tc, sc)
		return
	}

	// ===== Slow path: stream =====

	h.handleStream(c, ctx, tc)
}

// resolveTurn computes the effective mode and derived flags from the
// request hints cross-checked against stored state. Flags are computed
// once here and never re-derived downstream.
func (h *chatHandler) resolveTurn(
	ctx context.Context,
	req *datatypes.ChatRequest,
	authInfo *extensions.AuthInfo,
	conv *store.Conversation,
) *turnContext {
	mode, ok := datatypes.ParseConversationMode(req.Mode)
	if !ok {
		mode = conv.Metadata.AIMode
	}
	if mode == "" {
		mode = datatypes.ModeGeneralQA
	}

	intakeSubmitted := req.IntakeSubmitted || conv.Metadata.IntakeSubmitted

	tc := &turnContext{
		req:             req,
		auth:            authInfo,
		conv:            conv,
		intakeSubmitted: intakeSubmitted,
	}

	// Practice lookup goes through the cache except in onboarding, which
	// mutates the record it reads.
	isOnboarding := mode == datatypes.ModePracticeOnboarding
	var practice *datatypes.PracticeDetails
	var err error
	switch {
	case req.PracticeSlug != "" && isOnboarding:
		practice, err = h.practices.GetFresh(ctx, req.PracticeSlug)
	case req.PracticeSlug != "":
		practice, err = h.practices.GetBySlug(ctx, req.PracticeSlug)
	case conv.Metadata.PracticeID != "":
		practice, err = h.store.GetPracticeByID(ctx, conv.Metadata.PracticeID)
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.logger.Warn("practice lookup failed", "slug", req.PracticeSlug, "error", err)
	}
	tc.practice = practice

	tc.isOnboardingMode = isOnboarding
	tc.isIntakeMode = !isOnboarding &&
		(mode == datatypes.ModeRequestConsultation || conv.Metadata.Intake != nil) &&
		!intakeSubmitted &&
		practice != nil && practice.IsPublic
	tc.isGeneralQA = !tc.isOnboardingMode && !tc.isIntakeMode

	switch {
	case tc.isOnboardingMode:
		tc.mode = datatypes.ModePracticeOnboarding
	case tc.isIntakeMode:
		tc.mode = datatypes.ModeRequestConsultation
	default:
		tc.mode = datatypes.ModeGeneralQA
	}
	return tc
}

// handleShortCircuit persists a rule-matched reply and answers with a
// plain JSON body. This is the one path that does not use SSE, kept for
// non-streaming callers.
func (h *chatHandler) handleShortCircuit(c *gin.Context, tc *turnContext, sc *ShortCircuitResult) {
	h.logger.Info("short-circuit reply",
		"rule", sc.Rule,
		"conversation_id", tc.req.ConversationID,
		"mode", string(tc.mode),
	)
	if h.metrics != nil {
		h.metrics.RecordShortCircuit(sc.Rule)
		h.metrics.RecordRequest(string(tc.mode), true)
	}

	// Metadata flags are computed from stored state, not from which rule
	// fired, so both persistence paths tag replies identically.
	md := datatypes.MessageMetadata{
		AIGenerated:    true,
		Mode:           tc.mode,
		IntakeReadyCta: tc.isIntakeMode && tc.conv.Metadata.Intake.ReadyForSubmission(),
		ModeSelector:   tc.modeSelector(),
	}

	persistCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	msgID, err := h.store.SendSystemMessage(persistCtx, tc.req.ConversationID, tc.auth.UserID, sc.Reply, md)
	if err != nil {
		h.logger.Error("short-circuit persistence failed", "conversation_id", tc.req.ConversationID, "error", err)
		h.recordError(string(tc.mode), observability.ErrorCodePersistence)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save message"})
		return
	}

	var profile *datatypes.OnboardingProfile
	if tc.isOnboardingMode {
		p := datatypes.ComputeOnboardingProfile(tc.practice)
		profile = &p
	}

	h.auditEvent(persistCtx, extensions.EventAIMessageSent, tc, sc.Reply)

	c.JSON(http.StatusOK, gin.H{
		"reply": sc.Reply,
		"message": gin.H{
			"id":       msgID,
			"content":  sc.Reply,
			"metadata": md,
		},
		"intakeFields":      nil,
		"onboardingFields":  nil,
		"onboardingProfile": profile,
	})
}

// handleStream runs the full streaming pipeline for one turn.
func (h *chatHandler) handleStream(c *gin.Context, ctx context.Context, tc *turnContext) {
	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		h.recordError(string(tc.mode), observability.ErrorCodeInternal)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	modeLabel := string(tc.mode)
	started := time.Now()
	if h.metrics != nil {
		h.metrics.StreamStarted(modeLabel)
		defer h.metrics.StreamEnded(modeLabel)
	}

	// Prior onboarding profile feeds the prompt so the model knows what
	// is still missing.
	var promptProfile *datatypes.OnboardingProfile
	if tc.isOnboardingMode {
		p := datatypes.ComputeOnboardingProfile(tc.practice)
		promptProfile = &p
	}

	upstreamReq := BuildCompletionRequest(h.model, promptContext{
		Mode:              tc.mode,
		Practice:          tc.practice,
		Intake:            tc.conv.Metadata.Intake,
		Profile:           promptProfile,
		AdditionalContext: tc.req.AdditionalContext,
	}, tc.req.Messages)

	// The client cannot cancel the turn: persistence must still happen
	// after a disconnect, so the upstream stream runs on a detached
	// context. Only the connect/stall deadlines terminate it early.
	streamCtx := context.WithoutCancel(ctx)
	disconnected := false
	result := h.processor.Run(streamCtx, upstreamReq, tc.mode, func(token string) error {
		err := writer.WriteToken(token)
		if err != nil && !disconnected {
			disconnected = true
			if h.metrics != nil {
				h.metrics.RecordClientDisconnect(modeLabel)
			}
		}
		return err
	})

	if h.metrics != nil {
		if result.TimeToFirstToken > 0 {
			h.metrics.RecordTimeToFirstToken(modeLabel, result.TimeToFirstToken.Seconds())
		}
		h.metrics.RecordTokens(result.TokenCount, h.model)
		switch result.FallbackReason {
		case "timeout":
			h.metrics.RecordError(modeLabel, observability.ErrorCodeTimeout)
		case "stall":
			h.metrics.RecordError(modeLabel, observability.ErrorCodeStall)
		case "upstream_error":
			h.metrics.RecordError(modeLabel, observability.ErrorCodeUpstream)
		}
		if result.FallbackReason != "" {
			h.metrics.RecordFallback(modeLabel, result.FallbackReason)
		}
	}

	// ===== Reconcile tool calls =====

	var (
		intakeDelta      *datatypes.IntakeFields
		onboardingDelta  *datatypes.OnboardingFields
		quickReplies     []string
		triggerEditModal string
	)
	if result.ToolCall != nil {
		switch {
		case tc.isIntakeMode && result.ToolCall.Name == intakeToolName:
			intakeDelta, quickReplies, err = datatypes.ParseIntakeArgs([]byte(result.ToolCall.Arguments()))
			if err != nil {
				h.logger.Warn("intake tool arguments unparseable", "conversation_id", tc.req.ConversationID, "error", err)
				intakeDelta, quickReplies = nil, nil
			}
		case tc.isOnboardingMode && result.ToolCall.Name == onboardingToolName:
			onboardingDelta, quickReplies, triggerEditModal, err = datatypes.ParseOnboardingArgs([]byte(result.ToolCall.Arguments()))
			if err != nil {
				h.logger.Warn("onboarding tool arguments unparseable", "conversation_id", tc.req.ConversationID, "error", err)
				onboardingDelta, quickReplies, triggerEditModal = nil, nil, ""
			}
		default:
			h.logger.Warn("ignoring tool call outside active mode", "tool", result.ToolCall.Name, "mode", modeLabel)
		}
	}

	// ===== Enforce response contract =====

	finalReply, violations := EnforceResponseContract(tc.mode, tc.req.LastUserMessage(), result.Reply)
	if len(violations) > 0 {
		h.logger.Warn("response contract violated",
			"conversation_id", tc.req.ConversationID,
			"violated_rules", violations,
		)
		if h.metrics != nil {
			h.metrics.RecordFallback(modeLabel, "contract_violation")
		}
	}

	// ===== Merge state and score =====

	var (
		mergedIntake   *datatypes.IntakeFields
		profile        *datatypes.OnboardingProfile
		intakeReadyCta bool
	)
	persistCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if tc.isIntakeMode {
		mergedIntake = datatypes.MergeIntake(tc.conv.Metadata.Intake, intakeDelta)
		intakeReadyCta = mergedIntake.ReadyForSubmission()
	}
	if tc.isOnboardingMode {
		updated := tc.practice
		if onboardingDelta != nil && tc.practice != nil {
			updated = datatypes.ApplyOnboarding(tc.practice, onboardingDelta)
			if err := h.store.UpsertPractice(persistCtx, updated); err != nil {
				h.logger.Error("practice update failed", "practice_id", updated.ID, "error", err)
				updated = tc.practice
			} else {
				h.practices.Invalidate(updated.Slug)
			}
		}
		p := datatypes.ComputeOnboardingProfile(updated)
		profile = &p
	}

	// ===== Done event =====

	done := datatypes.StreamEvent{
		Type:              datatypes.EventDone,
		IntakeFields:      mergedIntake,
		OnboardingFields:  onboardingDelta,
		OnboardingProfile: profile,
		QuickReplies:      quickReplies,
		TriggerEditModal:  triggerEditModal,
	}
	if err := writer.WriteEvent(done); err != nil {
		h.logger.Debug("done event write failed", "error", err)
	}

	// ===== Persist =====

	md := datatypes.MessageMetadata{
		AIGenerated:    true,
		Mode:           tc.mode,
		IntakeReadyCta: intakeReadyCta,
		ModeSelector:   tc.modeSelector(),
		QuickReplies:   quickReplies,
	}
	msgID, err := h.store.SendSystemMessage(persistCtx, tc.req.ConversationID, tc.auth.UserID, finalReply, md)
	if err != nil {
		h.logger.Error("message persistence failed", "conversation_id", tc.req.ConversationID, "error", err)
		h.recordError(modeLabel, observability.ErrorCodePersistence)
		_ = writer.WriteError("failed to save message")
		if h.metrics != nil {
			h.metrics.RecordRequest(modeLabel, false)
			h.metrics.RecordStreamDuration(modeLabel, time.Since(started).Seconds(), false)
		}
		return
	}

	if tc.isIntakeMode {
		h.writeIntakeMetadata(persistCtx, tc, mergedIntake)
	}

	if err := writer.WritePersisted(msgID); err != nil {
		h.logger.Debug("persisted event write failed", "error", err)
	}

	h.auditEvent(persistCtx, extensions.EventAIMessageSent, tc, finalReply)

	if h.metrics != nil {
		h.metrics.RecordRequest(modeLabel, true)
		h.metrics.RecordStreamDuration(modeLabel, time.Since(started).Seconds(), true)
	}
}

// writeIntakeMetadata writes the merged intake state back onto the
// conversation with one retry that refetches first, reducing lost-update
// risk under concurrent writers. A second failure is logged, never
// raised: metadata loss must not fail the user-visible turn.
func (h *chatHandler) writeIntakeMetadata(ctx context.Context, tc *turnContext, merged *datatypes.IntakeFields) {
	md := tc.conv.Metadata
	md.AIMode = datatypes.ModeRequestConsultation
	md.Intake = merged
	if tc.practice != nil {
		md.PracticeID = tc.practice.ID
	}

	err := h.store.UpdateConversationMetadata(ctx, tc.req.ConversationID, md)
	if err == nil {
		return
	}
	h.logger.Warn("intake metadata write failed, retrying with refetch",
		"conversation_id", tc.req.ConversationID, "error", err)

	fresh, ferr := h.store.GetConversation(ctx, tc.req.ConversationID)
	if ferr != nil {
		h.logger.Error("intake metadata refetch failed", "conversation_id", tc.req.ConversationID, "error", ferr)
		return
	}
	retry := fresh.Metadata
	retry.AIMode = datatypes.ModeRequestConsultation
	retry.Intake = datatypes.MergeIntake(fresh.Metadata.Intake, merged)
	if tc.practice != nil {
		retry.PracticeID = tc.practice.ID
	}
	if err := h.store.UpdateConversationMetadata(ctx, tc.req.ConversationID, retry); err != nil {
		h.logger.Error("intake metadata write failed after retry",
			"conversation_id", tc.req.ConversationID, "error", err)
	}
}

func (h *chatHandler) auditEvent(ctx context.Context, eventType string, tc *turnContext, content string) {
	evt := extensions.AuditEvent{
		EventType:    eventType,
		Timestamp:    time.Now().UTC(),
		UserID:       tc.auth.UserID,
		Action:       "chat_turn",
		ResourceType: "conversation",
		ResourceID:   tc.req.ConversationID,
		Outcome:      "success",
		Metadata: map[string]any{
			"mode":           string(tc.mode),
			"content_length": len(content),
		},
	}
	if err := h.audit.Log(ctx, evt); err != nil {
		h.logger.Debug("audit write failed", "event_type", eventType, "error", err)
	}
}

func (h *chatHandler) recordError(mode string, code observability.ErrorCode) {
	if h.metrics != nil {
		h.metrics.RecordError(mode, code)
	}
}
