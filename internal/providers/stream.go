package providers

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/semantrix/adaptroute/internal/models"
)

type chunkDecoder func(data []byte) (string, *models.Usage, error)

// aggregateStream collapses an SSE body into one extraction: data payloads are
// decoded in order, their text concatenated and the last usage kept.
func aggregateStream(body []byte, decode chunkDecoder) (Extraction, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		content strings.Builder
		usage   *models.Usage
		chunks  int
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			break
		}

		text, u, err := decode([]byte(data))
		if err != nil {
			return Extraction{}, fmt.Errorf("stream chunk %d: %w", chunks, err)
		}
		content.WriteString(text)
		if u != nil {
			usage = u
		}
		chunks++
	}
	if err := scanner.Err(); err != nil {
		return Extraction{}, fmt.Errorf("failed to read event stream: %w", err)
	}

	if content.Len() == 0 {
		return Extraction{}, fmt.Errorf("event stream carried no content (%d chunks)", chunks)
	}
	return Extraction{Content: content.String(), Usage: usage}, nil
}
