// Package main runs a demo client against a local API: it optimizes the
// demo schedule, then watches the live position feed over WebSocket.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Fetch the demo schedule and run it through the optimizer
	resp, err := http.Get(base + "/v1/demo-data?seed=42")
	if err != nil {
		log.Fatal(err)
	}
	demoBody := new(bytes.Buffer)
	if _, err := demoBody.ReadFrom(resp.Body); err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()

	req, _ := http.NewRequest(http.MethodPost, base+"/v1/optimize", demoBody)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	var optResp struct {
		RunID  string `json:"runId"`
		Result struct {
			Status  string `json:"status"`
			Metrics struct {
				ImprovementPercent float64 `json:"improvementPercent"`
			} `json:"metrics"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&optResp); err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("run %s: %s, improvement %.1f%%",
		optResp.RunID, optResp.Result.Status, optResp.Result.Metrics.ImprovementPercent)

	// Watch the position feed
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/feed/positions/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Data))
		}
	}()

	// Watch a couple of feeder ticks, then leave
	select {
	case <-time.After(15 * time.Second):
	case <-done:
	}
}
