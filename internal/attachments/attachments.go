// Package attachments resolves inbound message attachments into model-ready
// inputs: images become data URLs, documents become extracted text, and audio
// recordings are transcribed.
package attachments

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/lumenhq/agent-platform/internal/model"
	"github.com/lumenhq/agent-platform/pkg/logger"
)

const (
	// maxAttachmentBytes bounds how much of one attachment is downloaded.
	maxAttachmentBytes = 20 << 20

	// transcriptionWorkers bounds concurrent audio transcriptions.
	transcriptionWorkers = 4

	transcriptionModel = "whisper-1"
)

// Extractor turns a document attachment into plain text.
type Extractor interface {
	ExtractText(ctx context.Context, att model.Attachment) (string, error)
}

// Resolved is the model-ready view of a message's attachments.
type Resolved struct {
	// ImageURLs are base64 data URLs for vision-capable models.
	ImageURLs []string
	// DocumentText is the concatenated extracted text of document
	// attachments, injected as extra context.
	DocumentText string
	// Transcripts are audio transcriptions in attachment order.
	Transcripts []string
}

// Resolver downloads and converts attachments. All failures are soft: a
// broken attachment is logged and skipped, never failing the turn.
type Resolver struct {
	http      *http.Client
	openai    *openai.Client
	extractor Extractor
	logger    *logger.Logger
}

// NewResolver creates an attachment resolver. The extractor may be nil when
// no extraction service is configured.
func NewResolver(openaiAPIKey string, extractor Extractor, log *logger.Logger) *Resolver {
	var client *openai.Client
	if openaiAPIKey != "" {
		client = openai.NewClient(openaiAPIKey)
	}
	return &Resolver{
		http:      &http.Client{Timeout: 30 * time.Second},
		openai:    client,
		extractor: extractor,
		logger:    log,
	}
}

// Resolve partitions and converts the attachments of one inbound message.
func (r *Resolver) Resolve(ctx context.Context, atts []model.Attachment) *Resolved {
	out := &Resolved{}

	var images, docs, audio []model.Attachment
	for _, att := range atts {
		switch {
		case att.IsImage():
			images = append(images, att)
		case att.IsAudio():
			audio = append(audio, att)
		default:
			docs = append(docs, att)
		}
	}

	for _, att := range images {
		url, err := r.encodeImage(ctx, att)
		if err != nil {
			r.logger.Warn("image attachment skipped",
				zap.String("name", att.Name), zap.Error(err))
			continue
		}
		out.ImageURLs = append(out.ImageURLs, url)
	}

	var texts []string
	for _, att := range docs {
		if r.extractor == nil {
			break
		}
		text, err := r.extractor.ExtractText(ctx, att)
		if err != nil {
			r.logger.Warn("document attachment skipped",
				zap.String("name", att.Name), zap.Error(err))
			continue
		}
		if strings.TrimSpace(text) != "" {
			texts = append(texts, fmt.Sprintf("Content of %s:\n%s", att.Name, text))
		}
	}
	out.DocumentText = strings.Join(texts, "\n\n")

	out.Transcripts = r.transcribeAll(ctx, audio)
	return out
}

// encodeImage downloads an image and encodes it as a base64 data URL.
func (r *Resolver) encodeImage(ctx context.Context, att model.Attachment) (string, error) {
	data, err := r.download(ctx, att.URL)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("data:%s;base64,%s", att.MimeType,
		base64.StdEncoding.EncodeToString(data)), nil
}

// transcribeAll runs audio transcriptions through a bounded worker pool,
// preserving attachment order in the result.
func (r *Resolver) transcribeAll(ctx context.Context, audio []model.Attachment) []string {
	if len(audio) == 0 || r.openai == nil {
		return nil
	}

	results := make([]string, len(audio))
	sem := make(chan struct{}, transcriptionWorkers)
	var wg sync.WaitGroup

	for i, att := range audio {
		wg.Add(1)
		go func(i int, att model.Attachment) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			text, err := r.transcribe(ctx, att)
			if err != nil {
				r.logger.Warn("audio attachment skipped",
					zap.String("name", att.Name), zap.Error(err))
				return
			}
			results[i] = text
		}(i, att)
	}
	wg.Wait()

	var out []string
	for _, t := range results {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (r *Resolver) transcribe(ctx context.Context, att model.Attachment) (string, error) {
	data, err := r.download(ctx, att.URL)
	if err != nil {
		return "", err
	}

	resp, err := r.openai.CreateTranscription(ctx, openai.AudioRequest{
		Model:    transcriptionModel,
		FilePath: att.Name,
		Reader:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", att.Name, err)
	}
	return resp.Text, nil
}

func (r *Resolver) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download attachment: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes))
}
