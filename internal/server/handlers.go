package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/semantrix/adaptroute/internal/cost"
	"github.com/semantrix/adaptroute/internal/dispatch"
	"github.com/semantrix/adaptroute/internal/models"
	"github.com/semantrix/adaptroute/internal/router"
	v1 "github.com/semantrix/adaptroute/pkg/api/v1"
)

const maxBodyBytes = 1 << 20

var validate = validator.New()

// handleHealthCheck reports the service and per-provider health.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	providers := make(map[string]v1.ProviderHealth, len(models.AllProviders))
	status := "healthy"
	for _, p := range models.AllProviders {
		h := s.providerHealth(p)
		if !h.Available {
			status = "degraded"
		}
		providers[p.String()] = h
	}

	response := v1.HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		Mode:      string(s.dispatcher.Transport().Mode),
		Providers: providers,
		Version:   Version,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleGenerate dispatches one generation request.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var apiReq v1.GenerateRequest
	if !s.decode(w, r, &apiReq) {
		return
	}

	req := models.GenerationRequest{
		Prompt:       apiReq.Prompt,
		SystemPrompt: apiReq.SystemPrompt,
		LogicalModel: apiReq.Model,
		Temperature:  apiReq.Temperature,
		MaxTokens:    apiReq.MaxTokens,
		Stream:       apiReq.Stream,
		CallerID:     callerID(r, apiReq.CallerID),
	}

	result, err := s.dispatcher.Dispatch(r.Context(), req, callOptions(apiReq.DispatchOptions)...)
	if err != nil {
		s.writeDispatchError(w, r, result, err)
		return
	}

	writeJSON(w, http.StatusOK, convertResult(result))
}

// handleBatch dispatches several prompts sequentially.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var apiReq v1.BatchRequest
	if !s.decode(w, r, &apiReq) {
		return
	}

	caller := callerID(r, apiReq.CallerID)
	reqs := make([]models.GenerationRequest, len(apiReq.Prompts))
	for i, prompt := range apiReq.Prompts {
		reqs[i] = models.GenerationRequest{
			Prompt:       prompt,
			SystemPrompt: apiReq.SystemPrompt,
			LogicalModel: apiReq.Model,
			Temperature:  apiReq.Temperature,
			MaxTokens:    apiReq.MaxTokens,
			CallerID:     caller,
		}
	}

	results := s.dispatcher.Batch(r.Context(), reqs, callOptions(apiReq.DispatchOptions)...)

	response := v1.BatchResponse{
		Results: make([]v1.GenerateResponse, len(results)),
		Total:   len(results),
	}
	for i, result := range results {
		response.Results[i] = convertResult(result)
		if result.Success {
			response.Succeeded++
		} else {
			response.Fallbacks++
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// handleEstimate returns a cost projection.
func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var apiReq v1.EstimateRequest
	if !s.decode(w, r, &apiReq) {
		return
	}

	est := s.dispatcher.EstimateCost(apiReq.Prompt, apiReq.Model)
	writeJSON(w, http.StatusOK, v1.EstimateResponse{
		Model:            est.Model,
		PromptTokens:     est.PromptTokens,
		CompletionTokens: est.CompletionTokens,
		PricePer1K:       est.PricePer1K,
		EstimatedCost:    est.Cost,
	})
}

// handleGetModels lists the logical models with routing entries.
func (s *Server) handleGetModels(w http.ResponseWriter, r *http.Request) {
	entries := router.KnownModels()

	response := v1.ModelsResponse{
		Models: make([]v1.ModelInfo, 0, len(entries)),
		Total:  len(entries),
	}
	for _, p := range models.AllProviders {
		response.Providers = append(response.Providers, p.String())
	}
	for _, e := range entries {
		response.Models = append(response.Models, v1.ModelInfo{
			ID:          e.LogicalModel,
			Provider:    e.Provider.String(),
			WireModelID: e.WireModelID,
			PricePer1K:  cost.Price(e.LogicalModel),
		})
	}

	writeJSON(w, http.StatusOK, response)
}

// handleGetProviderHealth returns health information for a specific provider.
func (s *Server) handleGetProviderHealth(w http.ResponseWriter, r *http.Request) {
	provider, err := models.ParseProvider(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, "not_found", err.Error(), false)
		return
	}

	writeJSON(w, http.StatusOK, s.providerHealth(provider))
}

// handleGetTransport describes the transport strategy selected at startup.
func (s *Server) handleGetTransport(w http.ResponseWriter, r *http.Request) {
	desc := s.dispatcher.Transport()

	response := v1.TransportResponse{
		Mode:     string(desc.Mode),
		Strategy: desc.Strategy,
		ProxyURL: desc.ProxyURL,
	}
	if len(desc.Endpoints) > 0 {
		response.Endpoints = make(map[string]string, len(desc.Endpoints))
		for p, url := range desc.Endpoints {
			response.Endpoints[p.String()] = url
		}
	}
	if len(desc.Credentials) > 0 {
		response.Credentials = make(map[string]bool, len(desc.Credentials))
		for p, ok := range desc.Credentials {
			response.Credentials[p.String()] = ok
		}
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) providerHealth(provider models.Provider) v1.ProviderHealth {
	h := s.dispatcher.CheckHealth(provider)
	out := v1.ProviderHealth{
		Name:          provider.String(),
		Available:     h.Available,
		Checked:       h.Checked(),
		LastLatencyMs: h.LastLatencyMs,
		LastError:     h.LastError,
	}
	if h.Checked() {
		at := h.LastCheckedAt
		out.LastCheckedAt = &at

		stats := s.dispatcher.HealthStats(provider)
		out.Stats = &v1.ProviderStats{
			TotalAttempts:    stats.TotalChecks,
			Successful:       stats.SuccessfulChecks,
			Failed:           stats.FailedChecks,
			Uptime:           stats.Uptime,
			AverageLatencyMs: stats.AverageLatency.Milliseconds(),
		}
	}
	return out
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		s.logger.Debug("Failed to decode request", zap.Error(err))
		writeError(w, r, http.StatusBadRequest, string(models.KindInvalidRequest), "invalid request body", false)
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, r, http.StatusBadRequest, string(models.KindInvalidRequest), validationMessage(err), false)
		return false
	}
	return true
}

func (s *Server) writeDispatchError(w http.ResponseWriter, r *http.Request, result models.GenerationResult, err error) {
	kind := models.KindOf(err)
	status := http.StatusInternalServerError
	errType := "internal_error"

	switch kind {
	case models.KindInvalidRequest:
		status, errType = http.StatusBadRequest, string(kind)
	case models.KindConfiguration:
		status, errType = http.StatusServiceUnavailable, string(kind)
		s.logger.Error("Dispatch rejected by configuration",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}

	resp := v1.ErrorResponse{
		Error: v1.ErrorDetails{
			Type:       errType,
			Message:    err.Error(),
			StatusCode: status,
			Retryable:  status == http.StatusInternalServerError,
		},
		RequestID: middleware.GetReqID(r.Context()),
	}
	if result.Content != "" {
		fallback := convertResult(result)
		resp.Result = &fallback
	}
	writeJSON(w, status, resp)
}

func callOptions(o v1.DispatchOptions) []dispatch.CallOption {
	var opts []dispatch.CallOption
	if o.Provider != "" {
		opts = append(opts, dispatch.WithProvider(o.Provider))
	}
	if o.Platform != "" {
		opts = append(opts, dispatch.WithPlatform(o.Platform))
	}
	if o.TimeoutMs != nil {
		opts = append(opts, dispatch.WithTimeout(time.Duration(*o.TimeoutMs)*time.Millisecond))
	}
	if o.MaxRetries != nil {
		opts = append(opts, dispatch.WithMaxRetries(*o.MaxRetries))
	}
	if o.RetryBaseDelayMs != nil {
		opts = append(opts, dispatch.WithRetryBaseDelay(time.Duration(*o.RetryBaseDelayMs)*time.Millisecond))
	}
	return opts
}

// callerID prefers the body field and falls back to the X-Caller-ID header.
func callerID(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return r.Header.Get("X-Caller-ID")
}

func convertResult(result models.GenerationResult) v1.GenerateResponse {
	resp := v1.GenerateResponse{
		RequestID: result.RequestID,
		Content:   result.Content,
		Success:   result.Success,
		Source:    string(result.Source),
		ErrorKind: string(result.ErrorKind),
		Error:     result.Error,
		Provider:  result.Provider.String(),
		Model:     result.Model,
		Attempts:  result.Attempts,
		LatencyMs: result.LatencyMs,
	}
	if result.Usage != nil {
		resp.Usage = &v1.Usage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		}
	}
	return resp
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed '%s' validation", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, kind, message string, retryable bool) {
	writeJSON(w, status, v1.ErrorResponse{
		Error: v1.ErrorDetails{
			Type:       kind,
			Message:    message,
			StatusCode: status,
			Retryable:  retryable,
		},
		RequestID: middleware.GetReqID(r.Context()),
	})
}
