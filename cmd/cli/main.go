package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"doc-platform/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}
	cmd := os.Args[1]
	args := os.Args[2:]
	switch cmd {
	case "version":
		fmt.Println("doc-platform cli 0.1.0")
	case "health":
		runHealth()
	case "config":
		runConfig()
	case "server":
		if len(args) > 0 && args[0] == "start" {
			runServerStart()
		} else {
			fmt.Fprintf(os.Stderr, "Usage: docp server start\n")
			os.Exit(1)
		}
	case "worker":
		if len(args) > 0 && args[0] == "start" {
			runWorkerStart()
		} else {
			fmt.Fprintf(os.Stderr, "Usage: docp worker start\n")
			os.Exit(1)
		}
	case "submit":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: docp submit <type> [topic] [priority] [key=value ...]\n")
			os.Exit(1)
		}
		runSubmit(args)
	case "status":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: docp status <task_id>\n")
			os.Exit(1)
		}
		runStatus(args[0])
	case "watch":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: docp watch <task_id>\n")
			os.Exit(1)
		}
		runWatch(args[0])
	case "cancel":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: docp cancel <task_id>\n")
			os.Exit(1)
		}
		runCancel(args[0])
	case "retry":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: docp retry <task_id>\n")
			os.Exit(1)
		}
		runRetry(args[0])
	case "topic":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: docp topic <topic> [status]\n")
			os.Exit(1)
		}
		runTopic(args)
	case "stats":
		runStats()
	case "pause":
		runPause()
	case "resume":
		runResume()
	case "summary":
		topic := ""
		if len(args) > 0 {
			topic = args[0]
		}
		runSummary(topic)
	case "activity":
		runActivity()
	case "errors":
		window := ""
		if len(args) > 0 {
			window = args[0]
		}
		runErrors(window)
	case "upload":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: docp upload <file> [tasks] [priority]\n")
			os.Exit(1)
		}
		runUpload(args)
	case "docs":
		runDocs()
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: docp <command> [args]")
	fmt.Println("  version              - 显示版本")
	fmt.Println("  health               - 健康检查")
	fmt.Println("  config               - 显示配置概要")
	fmt.Println("  server start         - 启动 API 服务（go run ./cmd/api）")
	fmt.Println("  worker start         - 启动 Worker 服务（go run ./cmd/worker）")
	fmt.Println("  submit <type> [topic] [priority] [k=v ...] - 提交任务，返回 task_id")
	fmt.Println("  status <task_id>     - 查询任务详情与状态历史")
	fmt.Println("  watch <task_id>      - 轮询任务状态直到终态")
	fmt.Println("  cancel <task_id>     - 取消排队中的任务")
	fmt.Println("  retry <task_id>      - 重试失败任务，返回新 task_id")
	fmt.Println("  topic <topic> [status] - 列出主题下的任务")
	fmt.Println("  stats                - 队列统计")
	fmt.Println("  pause / resume       - 暂停 / 恢复任务调度")
	fmt.Println("  summary [topic]      - 系统状态摘要")
	fmt.Println("  activity             - 最近状态变更")
	fmt.Println("  errors [window]      - 错误统计（如 errors 1h）")
	fmt.Println("  upload <file> [tasks] [priority] - 上传文档并提交任务（如 upload a.pdf parsing,embedding high）")
	fmt.Println("  docs                 - 列出文档")
}

func runHealth() {
	out, err := getHealth()
	if err != nil {
		fmt.Fprintf(os.Stderr, "健康检查失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runConfig() {
	cfg, err := config.LoadAPIConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if cfg != nil {
		fmt.Printf("api.port=%d\n", cfg.API.Port)
		fmt.Printf("api.host=%s\n", cfg.API.Host)
		fmt.Printf("queue.workers=%d\n", cfg.Queue.Workers)
		fmt.Printf("queue.max_queue_size=%d\n", cfg.Queue.MaxQueueSize)
	}
}

func runServerStart() {
	c := exec.Command("go", "run", "./cmd/api")
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	c.Dir = "."
	if err := c.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "server start: %v\n", err)
		os.Exit(1)
	}
}

func runWorkerStart() {
	c := exec.Command("go", "run", "./cmd/worker")
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	c.Dir = "."
	if err := c.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker start: %v\n", err)
		os.Exit(1)
	}
}

func runSubmit(args []string) {
	typ := args[0]
	topic := ""
	priority := ""
	rest := args[1:]
	if len(rest) > 0 && !strings.Contains(rest[0], "=") {
		topic = rest[0]
		rest = rest[1:]
	}
	if len(rest) > 0 && !strings.Contains(rest[0], "=") {
		priority = rest[0]
		rest = rest[1:]
	}
	cfg := parseConfigPairs(rest)
	out, err := submitTask(typ, topic, priority, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "提交任务失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

// parseConfigPairs 解析 key=value 列表，非法项忽略
func parseConfigPairs(pairs []string) map[string]string {
	cfg := make(map[string]string)
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			continue
		}
		cfg[k] = v
	}
	return cfg
}

func runStatus(taskID string) {
	out, err := getTask(taskID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "查询任务失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runWatch(taskID string) {
	for i := 0; i < 120; i++ {
		out, err := getTask(taskID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "查询失败: %v\n", err)
			os.Exit(1)
		}
		status := ""
		if t, ok := out["task"].(map[string]interface{}); ok {
			status, _ = t["status"].(string)
		}
		fmt.Printf("  status: %s\n", status)
		if status == "completed" || status == "failed" || status == "cancelled" {
			return
		}
		time.Sleep(1 * time.Second)
	}
	fmt.Println("(超时，任务仍未到终态)")
}

func runCancel(taskID string) {
	out, err := cancelTask(taskID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "取消失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runRetry(taskID string) {
	out, err := retryTask(taskID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "重试失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runTopic(args []string) {
	status := ""
	if len(args) > 1 {
		status = args[1]
	}
	out, err := listTopicTasks(args[0], status)
	if err != nil {
		fmt.Fprintf(os.Stderr, "列出任务失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runStats() {
	out, err := queueStats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取队列统计失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runPause() {
	out, err := pauseQueue()
	if err != nil {
		fmt.Fprintf(os.Stderr, "暂停失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runResume() {
	out, err := resumeQueue()
	if err != nil {
		fmt.Fprintf(os.Stderr, "恢复失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runSummary(topic string) {
	out, err := getSummary(topic)
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取摘要失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runActivity() {
	out, err := getActivity(50)
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取状态变更失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runErrors(window string) {
	out, err := getErrorStats(window)
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取错误统计失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runUpload(args []string) {
	tasks := ""
	priority := ""
	if len(args) > 1 {
		tasks = args[1]
	}
	if len(args) > 2 {
		priority = args[2]
	}
	out, err := uploadDocument(args[0], tasks, priority)
	if err != nil {
		fmt.Fprintf(os.Stderr, "上传失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runDocs() {
	out, err := listDocuments()
	if err != nil {
		fmt.Fprintf(os.Stderr, "列出文档失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}
