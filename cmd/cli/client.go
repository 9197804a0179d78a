// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"doc-platform/pkg/utils"
)

func apiBaseURL() string {
	return utils.CoalesceString(os.Getenv("DOCP_API_URL"), "http://localhost:8080")
}

func newClient() *resty.Client {
	c := resty.New().
		SetBaseURL(apiBaseURL()).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
	if tok := os.Getenv("DOCP_TOKEN"); tok != "" {
		c.SetAuthToken(tok)
	}
	return c
}

func getHealth() (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/health")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/health: %s", resp.String())
	}
	return out, nil
}

func submitTask(typ, topic, priority string, cfg map[string]string) (map[string]interface{}, error) {
	body := map[string]interface{}{"type": typ}
	if topic != "" {
		body["topic"] = topic
	}
	if priority != "" {
		body["priority"] = priority
	}
	if len(cfg) > 0 {
		body["config"] = cfg
	}
	var out map[string]interface{}
	resp, err := newClient().R().
		SetBody(body).
		SetResult(&out).
		Post("/api/tasks")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusAccepted && resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("POST /api/tasks: %s", resp.String())
	}
	return out, nil
}

func getTask(taskID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/tasks/" + taskID)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/tasks/%s: %s", taskID, resp.String())
	}
	return out, nil
}

func cancelTask(taskID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Delete("/api/tasks/" + taskID)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("DELETE /api/tasks/%s: %s", taskID, resp.String())
	}
	return out, nil
}

func retryTask(taskID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Post("/api/tasks/" + taskID + "/retry")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusAccepted && resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("POST retry: %s", resp.String())
	}
	return out, nil
}

func listTopicTasks(topic, status string) (map[string]interface{}, error) {
	req := newClient().R()
	if status != "" {
		req.SetQueryParam("status", status)
	}
	var out map[string]interface{}
	resp, err := req.
		SetResult(&out).
		Get("/api/topics/" + topic + "/tasks")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/topics/%s/tasks: %s", topic, resp.String())
	}
	return out, nil
}

func queueStats() (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/queue/stats")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/queue/stats: %s", resp.String())
	}
	return out, nil
}

func pauseQueue() (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Post("/api/queue/pause")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("POST pause: %s", resp.String())
	}
	return out, nil
}

func resumeQueue() (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Post("/api/queue/resume")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("POST resume: %s", resp.String())
	}
	return out, nil
}

func getSummary(topic string) (map[string]interface{}, error) {
	req := newClient().R()
	if topic != "" {
		req.SetQueryParam("topic", topic)
	}
	var out map[string]interface{}
	resp, err := req.
		SetResult(&out).
		Get("/api/summary")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/summary: %s", resp.String())
	}
	return out, nil
}

func getActivity(limit int) (map[string]interface{}, error) {
	req := newClient().R()
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}
	var out map[string]interface{}
	resp, err := req.
		SetResult(&out).
		Get("/api/activity")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/activity: %s", resp.String())
	}
	return out, nil
}

func getErrorStats(window string) (map[string]interface{}, error) {
	req := newClient().R()
	if window != "" {
		req.SetQueryParam("window", window)
	}
	var out map[string]interface{}
	resp, err := req.
		SetResult(&out).
		Get("/api/errors/stats")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/errors/stats: %s", resp.String())
	}
	return out, nil
}

func uploadDocument(path, tasks, priority string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	req := newClient().R().
		SetFileReader("file", filepath.Base(path), bytes.NewReader(data))
	form := map[string]string{}
	if tasks != "" {
		form["tasks"] = tasks
	}
	if priority != "" {
		form["priority"] = priority
	}
	if len(form) > 0 {
		req.SetFormData(form)
	}
	var out map[string]interface{}
	resp, err := req.
		SetResult(&out).
		Post("/api/documents/upload")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusCreated && resp.StatusCode() != http.StatusAccepted {
		return nil, fmt.Errorf("POST /api/documents/upload: %s", resp.String())
	}
	return out, nil
}

func listDocuments() (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/documents")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/documents: %s", resp.String())
	}
	return out, nil
}

func prettyJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
