// Command mock-provider serves OpenAI-, DeepSeek- and Gemini-shaped endpoints
// for local development, with switches to simulate provider failures.
//
// Point a provider's base_url at it, for example:
//
//	ADAPTROUTE_PROVIDERS_OPENAI_BASE_URL=http://localhost:8001
//
// Failures can be forced globally with flags or per request with query
// parameters (?fail=503, ?fail=html, ?delay=500).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type options struct {
	failFirst  int
	failStatus int
	failHTML   bool
	delay      time.Duration
}

type mockProvider struct {
	opts  options
	calls atomic.Int64
}

type chatRequest struct {
	Model    string `json:"model"`
	Stream   bool   `json:"stream"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func main() {
	port := flag.Int("port", 8001, "Port to listen on")
	failFirst := flag.Int("fail-first", 0, "Fail the first N requests")
	failStatus := flag.Int("fail-status", http.StatusServiceUnavailable, "Status code used for simulated failures")
	failHTML := flag.Bool("html", false, "Answer simulated failures with an HTML page")
	delay := flag.Duration("delay", 0, "Delay applied to every request")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	m := &mockProvider{opts: options{
		failFirst:  *failFirst,
		failStatus: *failStatus,
		failHTML:   *failHTML,
		delay:      *delay,
	}}

	log.Infof("Mock provider starting on :%d", *port)
	if err := m.router().Run(fmt.Sprintf(":%d", *port)); err != nil {
		log.WithError(err).Fatal("Mock provider stopped")
	}
}

func (m *mockProvider) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/chat/completions", m.handleChat)
	r.POST("/v1/chat/completions", m.handleChat)
	// Gemini addresses models as /models/{model}:generateContent or
	// :streamGenerateContent.
	r.POST("/models/:call", m.handleGemini)
	r.POST("/v1beta/models/:call", m.handleGemini)
	// The proxy contract wraps the provider payload in an envelope.
	r.POST("/proxy", m.handleProxy)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "calls": m.calls.Load()})
	})

	return r
}

// simulate applies delays and failures. It returns true when it has already
// written a response.
func (m *mockProvider) simulate(c *gin.Context) bool {
	n := m.calls.Add(1)

	delay := m.opts.delay
	if ms, err := strconv.Atoi(c.Query("delay")); err == nil && ms > 0 {
		delay = time.Duration(ms) * time.Millisecond
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-c.Request.Context().Done():
			return true
		}
	}

	fail := c.Query("fail")
	if fail == "" && n <= int64(m.opts.failFirst) {
		if m.opts.failHTML {
			fail = "html"
		} else {
			fail = strconv.Itoa(m.opts.failStatus)
		}
	}
	if fail == "" {
		return false
	}

	log.WithFields(log.Fields{"call": n, "fail": fail}).Warn("Simulating failure")

	if fail == "html" {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte("<html><body><h1>Gateway error</h1></body></html>"))
		return true
	}

	code, err := strconv.Atoi(fail)
	if err != nil || code < 400 || code >= 600 {
		code = http.StatusInternalServerError
	}
	c.JSON(code, gin.H{
		"error": gin.H{
			"message": fmt.Sprintf("Simulated error %d", code),
			"type":    "simulated_error",
			"code":    fmt.Sprintf("error_%d", code),
		},
	})
	return true
}

func (m *mockProvider) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error(), "type": "invalid_request_error"}})
		return
	}
	if m.simulate(c) {
		return
	}
	m.writeChat(c, req)
}

func (m *mockProvider) writeChat(c *gin.Context, req chatRequest) {
	text := reply(lastUserMessage(req))

	log.WithFields(log.Fields{"model": req.Model, "stream": req.Stream}).Info("Chat completion")

	if req.Stream {
		streamChat(c, req.Model, text)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":      fmt.Sprintf("mock-%d", m.calls.Load()),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   req.Model,
		"choices": []gin.H{
			{
				"index":         0,
				"message":       gin.H{"role": "assistant", "content": text},
				"finish_reason": "stop",
			},
		},
		"usage": usage(text),
	})
}

func (m *mockProvider) handleGemini(c *gin.Context) {
	model, method, ok := strings.Cut(c.Param("call"), ":")
	if !ok || (method != "generateContent" && method != "streamGenerateContent") {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": 404, "message": "unknown method", "status": "NOT_FOUND"}})
		return
	}

	var req struct {
		Contents []struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": 400, "message": err.Error(), "status": "INVALID_ARGUMENT"}})
		return
	}
	if m.simulate(c) {
		return
	}

	var prompt string
	if n := len(req.Contents); n > 0 && len(req.Contents[n-1].Parts) > 0 {
		prompt = req.Contents[n-1].Parts[0].Text
	}
	if method == "streamGenerateContent" {
		streamGemini(c, model, reply(prompt))
		return
	}
	m.writeGemini(c, model, reply(prompt))
}

func (m *mockProvider) writeGemini(c *gin.Context, model, text string) {
	log.WithField("model", model).Info("Gemini generateContent")

	u := usage(text)
	c.JSON(http.StatusOK, gin.H{
		"candidates": []gin.H{
			{
				"content":      gin.H{"role": "model", "parts": []gin.H{{"text": text}}},
				"finishReason": "STOP",
			},
		},
		"usageMetadata": gin.H{
			"promptTokenCount":     u["prompt_tokens"],
			"candidatesTokenCount": u["completion_tokens"],
			"totalTokenCount":      u["total_tokens"],
		},
	})
}

func (m *mockProvider) handleProxy(c *gin.Context) {
	var env struct {
		Provider string          `json:"provider"`
		Model    string          `json:"model"`
		Payload  json.RawMessage `json:"payload"`
	}
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}
	if m.simulate(c) {
		return
	}

	log.WithFields(log.Fields{
		"provider":  env.Provider,
		"model":     env.Model,
		"caller_id": c.GetHeader("X-Caller-ID"),
	}).Info("Proxied call")

	if env.Provider == "gemini" {
		m.writeGemini(c, env.Model, reply(""))
		return
	}

	var req chatRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}
	m.writeChat(c, req)
}

func streamChat(c *gin.Context, model, text string) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	words := strings.SplitAfter(text, " ")
	c.Stream(func(w io.Writer) bool {
		for i, word := range words {
			chunk, _ := json.Marshal(gin.H{
				"id":      fmt.Sprintf("mock-chunk-%d", i),
				"object":  "chat.completion.chunk",
				"model":   model,
				"choices": []gin.H{{"index": 0, "delta": gin.H{"content": word}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", chunk)
			c.Writer.Flush()
		}

		final, _ := json.Marshal(gin.H{
			"id":      "mock-final",
			"object":  "chat.completion.chunk",
			"model":   model,
			"choices": []gin.H{{"index": 0, "delta": gin.H{}, "finish_reason": "stop"}},
			"usage":   usage(text),
		})
		fmt.Fprintf(w, "data: %s\n\n", final)
		fmt.Fprint(w, "data: [DONE]\n\n")
		c.Writer.Flush()
		return false
	})
}

// streamGemini answers in Gemini's alt=sse form: one candidate per event and
// no terminating sentinel.
func streamGemini(c *gin.Context, model, text string) {
	log.WithField("model", model).Info("Gemini streamGenerateContent")

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")

	words := strings.SplitAfter(text, " ")
	c.Stream(func(w io.Writer) bool {
		for i, word := range words {
			event := gin.H{
				"candidates": []gin.H{{"content": gin.H{"role": "model", "parts": []gin.H{{"text": word}}}}},
			}
			if i == len(words)-1 {
				u := usage(text)
				event["usageMetadata"] = gin.H{
					"promptTokenCount":     u["prompt_tokens"],
					"candidatesTokenCount": u["completion_tokens"],
					"totalTokenCount":      u["total_tokens"],
				}
			}
			chunk, _ := json.Marshal(event)
			fmt.Fprintf(w, "data: %s\n\n", chunk)
			c.Writer.Flush()
		}
		return false
	})
}

func lastUserMessage(req chatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}

func reply(prompt string) string {
	if prompt == "" {
		return "Hello! I'm a mock provider response."
	}
	return fmt.Sprintf("Mock response to: %s", prompt)
}

func usage(text string) gin.H {
	completion := len(strings.Fields(text))
	return gin.H{
		"prompt_tokens":     10,
		"completion_tokens": completion,
		"total_tokens":      10 + completion,
	}
}
