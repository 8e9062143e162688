// Command test_integration drives a running lineage server end to end:
// it catalogs the URLs given on the command line, starts a run, answers
// every conflict with the decision in DECISION (default keep_existing) and
// prints the summary.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func baseURL() string {
	if u := os.Getenv("LINEAGE_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func main() {
	urls := os.Args[1:]
	if len(urls) == 0 {
		fmt.Println("usage: test_integration <obituary url>...")
		os.Exit(2)
	}
	decision := os.Getenv("DECISION")
	if decision == "" {
		decision = "keep_existing"
	}

	fmt.Println("Starting Integration Test...")

	fmt.Println("1. Cataloging documents...")
	if _, ok := sendRequest("POST", "/documents", map[string]interface{}{"urls": urls}, http.StatusOK); !ok {
		fmt.Println("FAILED: Catalog documents")
		os.Exit(1)
	}
	fmt.Println("PASSED: Catalog documents")

	fmt.Println("2. Starting run...")
	if _, ok := sendRequest("POST", "/run", map[string]interface{}{"urls": urls}, http.StatusAccepted); !ok {
		fmt.Println("FAILED: Start run")
		os.Exit(1)
	}
	fmt.Println("PASSED: Start run")

	fmt.Println("3. Waiting for run, answering conflicts...")
	deadline := time.Now().Add(5 * time.Minute)
	for time.Now().Before(deadline) {
		answerConflicts(decision)

		body, ok := sendRequest("GET", "/run", nil, http.StatusOK)
		if !ok {
			fmt.Println("FAILED: Run status")
			os.Exit(1)
		}
		var status struct {
			Running bool            `json:"running"`
			Summary json.RawMessage `json:"summary"`
			Error   string          `json:"error"`
		}
		if err := json.Unmarshal(body, &status); err != nil {
			fmt.Printf("FAILED: Decode run status: %v\n", err)
			os.Exit(1)
		}
		if !status.Running {
			if status.Error != "" {
				fmt.Printf("FAILED: Run: %s\n", status.Error)
				os.Exit(1)
			}
			fmt.Printf("Summary: %s\n", status.Summary)
			fmt.Println("PASSED: Run")
			return
		}
		time.Sleep(time.Second)
	}
	fmt.Println("FAILED: Run did not finish")
	os.Exit(1)
}

func answerConflicts(decision string) {
	body, ok := sendRequest("GET", "/conflicts", nil, http.StatusOK)
	if !ok {
		return
	}
	var resp struct {
		Conflicts []struct {
			ID string `json:"id"`
		} `json:"conflicts"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return
	}
	for _, c := range resp.Conflicts {
		sendRequest("POST", "/conflicts/"+c.ID+"/decision", map[string]string{"decision": decision}, http.StatusOK)
	}
}

func sendRequest(method, endpoint string, payload interface{}, want int) ([]byte, bool) {
	var body io.Reader
	if payload != nil {
		jsonBytes, _ := json.Marshal(payload)
		body = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, baseURL()+endpoint, body)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		return nil, false
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		return nil, false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		fmt.Printf("Request failed with status %d: %s\n", resp.StatusCode, string(respBody))
		return respBody, false
	}
	return respBody, true
}
