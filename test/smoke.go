package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/satriahrh/backbone/domain"
)

const defaultBaseURL = "http://localhost:8080"

type submitResponse struct {
	Submitted bool                `json:"submitted"`
	Exchange  *domain.Exchange    `json:"exchange"`
	State     domain.SessionState `json:"state"`
}

// Drives one exchange against a running server and prints the transcript.
func main() {
	baseURL := os.Getenv("COACH_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	message := "I ran 3 miles today"
	if len(os.Args) > 1 {
		message = os.Args[1]
	}

	fmt.Println("🚀 Starting chat smoke test...")
	client := &http.Client{Timeout: 60 * time.Second}

	if err := putDraft(client, baseURL, message); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set draft: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Draft set: %q\n", message)

	start := time.Now()
	resp, err := submitDraft(client, baseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to submit: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("⏱️  Exchange completed in %v\n", time.Since(start))

	for i, turn := range resp.State.Transcript {
		fmt.Printf("%2d %-9s %s\n", i, turn.Role, turn.Content)
	}
	if resp.Exchange != nil && resp.Exchange.Failed {
		fmt.Println("⚠️  Backend failed; fallback reply was appended")
		os.Exit(2)
	}
	fmt.Println("✅ Chat smoke test completed successfully!")
}

func putDraft(client *http.Client, baseURL, text string) error {
	body, _ := json.Marshal(map[string]string{"text": text})
	req, err := http.NewRequest(http.MethodPut, baseURL+"/api/v1/session/draft", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, data)
	}
	return nil
}

func submitDraft(client *http.Client, baseURL string) (submitResponse, error) {
	var out submitResponse

	resp, err := client.Post(baseURL+"/api/v1/session/messages", "application/json", nil)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, err
	}
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("status %d: %s", resp.StatusCode, data)
	}
	return out, json.Unmarshal(data, &out)
}
