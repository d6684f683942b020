// Copyright (C) 2025 Casewise (engineering@casewise.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"io"

	"github.com/sashabaranov/go-openai"
)

// UpstreamClient opens a streaming chat completion against an
// OpenAI-compatible backend and hands the raw SSE byte stream back to
// the caller.
//
// The stream consists of "data: {...}" lines, one JSON-encoded
// openai.ChatCompletionStreamResponse per line, terminated by
// "data: [DONE]". Decoding is owned by the caller so it can enforce its
// own stall deadlines per read; the client only manages transport.
type UpstreamClient interface {
	// StreamChat sends the completion request with stream enabled and
	// returns the response body. The caller must Close the stream.
	StreamChat(ctx context.Context, req openai.ChatCompletionRequest) (io.ReadCloser, error)
}
