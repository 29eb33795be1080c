// Package delivery posts activities to remote inboxes and reports a
// per-target outcome for every attempt.
package delivery

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/fedinode/fedinode/signature"
	"github.com/fedinode/fedinode/types"
)

var tracer = otel.Tracer("delivery")

const bodySnippetLimit = 256

// DeliveryResult is the outcome of a single inbox delivery. Error is empty
// when Success is true.
type DeliveryResult struct {
	Target  string `json:"target"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Analysis summarizes a batch of delivery results.
type Analysis struct {
	Total       int      `json:"total"`
	Successful  int      `json:"successful"`
	Failed      int      `json:"failed"`
	SuccessRate float64  `json:"successRate"`
	Errors      []string `json:"errors,omitempty"`
}

type Service struct {
	client *http.Client
	signer *signature.Signer
	config types.NodeConfig
}

func NewService(signer *signature.Signer, config types.NodeConfig) *Service {
	return &Service{
		client: &http.Client{Timeout: 30 * time.Second},
		signer: signer,
		config: config,
	}
}

// Deliver POSTs activity to a single inbox. One attempt, no retries; any
// failure is reported in the result rather than returned.
func (s *Service) Deliver(ctx context.Context, inbox string, activity []byte, actor types.Actor) DeliveryResult {
	ctx, span := tracer.Start(ctx, "Deliver")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, "POST", inbox, bytes.NewReader(activity))
	if err != nil {
		return DeliveryResult{Target: inbox, Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("User-Agent", "Fedinode/"+s.config.Version)

	if err := s.signer.SignRequest(ctx, req, activity, actor); err != nil {
		span.RecordError(err)
		return DeliveryResult{Target: inbox, Error: "signing failed: " + err.Error()}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		span.RecordError(err)
		return DeliveryResult{Target: inbox, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return DeliveryResult{Target: inbox, Success: true}
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, bodySnippetLimit))
	return DeliveryResult{
		Target: inbox,
		Error:  "status " + resp.Status + ": " + string(snippet),
	}
}

// DeliverAll fans activity out to every inbox concurrently. The result
// slice always has one entry per target; ordering is not guaranteed to
// match the input.
func (s *Service) DeliverAll(ctx context.Context, inboxes []string, activity []byte, actor types.Actor) []DeliveryResult {
	ctx, span := tracer.Start(ctx, "DeliverAll")
	defer span.End()

	results := make([]DeliveryResult, len(inboxes))
	var wg sync.WaitGroup
	for i, inbox := range inboxes {
		wg.Add(1)
		go func(i int, inbox string) {
			defer wg.Done()
			results[i] = s.Deliver(ctx, inbox, activity, actor)
		}(i, inbox)
	}
	wg.Wait()
	return results
}

// Analyze aggregates a batch of results. An empty batch yields a zero
// success rate, not a division by zero.
func Analyze(results []DeliveryResult) Analysis {
	analysis := Analysis{Total: len(results)}
	for _, r := range results {
		if r.Success {
			analysis.Successful++
		} else {
			analysis.Failed++
			analysis.Errors = append(analysis.Errors, r.Target+": "+r.Error)
		}
	}
	if analysis.Total > 0 {
		analysis.SuccessRate = float64(analysis.Successful) / float64(analysis.Total)
	}
	return analysis
}
