package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"relation-mapper/internal/adapter"
	"relation-mapper/internal/ai"
	"relation-mapper/internal/config"
	"relation-mapper/internal/inference"
	"relation-mapper/internal/renderer"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许跨域
	},
}

// AnalysisRequest 分析请求
type AnalysisRequest struct {
	DBType     string `json:"db_type"`     // mysql/sqlserver/postgres
	Host       string `json:"host"`        // 主机地址
	Port       string `json:"port"`        // 端口
	Username   string `json:"username"`    // 用户名
	Password   string `json:"password"`    // 密码
	Database   string `json:"database"`    // 数据库名
	Schema     string `json:"schema"`      // Schema
	SampleSize int    `json:"sample_size"` // 采样大小
	MinSample  int    `json:"min_sample"`  // 经验证据主导评分的最小样本量
	Workers    int    `json:"workers"`     // 验证并发度
	Threshold  string `json:"threshold"`   // 入图阈值
	EnableAI   bool   `json:"enable_ai"`   // 是否启用外部评级
	APIKey     string `json:"api_key"`     // 评级 API Key
}

// AnalysisTask 分析任务
type AnalysisTask struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"` // pending/running/completed/failed
	Message   string          `json:"message"`
	Result    *AnalysisResult `json:"result,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	request AnalysisRequest
}

// AnalysisResult 分析结果
type AnalysisResult struct {
	GraphJSON        string                   `json:"graph_json"`
	RelationshipsCSV string                   `json:"relationships_csv"`
	ReportMD         string                   `json:"report_md"`
	ErMermaid        string                   `json:"er_mermaid"`
	Relationships    []inference.Relationship `json:"relationships"`
	Stats            map[string]int           `json:"stats"`
}

var (
	tasks   = make(map[string]*AnalysisTask)
	tasksMu sync.RWMutex
)

func main() {
	_ = godotenv.Load()

	http.Handle("/", http.FileServer(http.Dir("web/static")))

	http.HandleFunc("/api/analyze", handleAnalyze)
	http.HandleFunc("/api/task/", handleTaskStatus)
	http.HandleFunc("/api/ws", handleWebSocket)
	http.HandleFunc("/api/test-connection", handleTestConnection)
	http.HandleFunc("/api/list-databases", handleListDatabases)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	fmt.Printf("🚀 Relation Mapper Web Server\n")
	fmt.Printf("📡 服务地址: http://localhost:%s\n\n", port)

	log.Fatal(http.ListenAndServe(":"+port, nil))
}

// handleAnalyze 处理分析请求
func handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	taskID := fmt.Sprintf("task_%d", time.Now().UnixNano())
	task := &AnalysisTask{
		ID:        taskID,
		Status:    "pending",
		Message:   "任务已创建，等待执行...",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		request:   req,
	}

	tasksMu.Lock()
	tasks[taskID] = task
	tasksMu.Unlock()

	// 异步执行分析
	go runAnalysis(task)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"task_id": taskID,
		"status":  "pending",
	})
}

// handleTaskStatus 查询任务状态
func handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := filepath.Base(r.URL.Path)

	tasksMu.RLock()
	task, exists := tasks[taskID]
	tasksMu.RUnlock()

	if !exists {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	tasksMu.RLock()
	json.NewEncoder(w).Encode(task)
	tasksMu.RUnlock()
}

// handleWebSocket WebSocket 连接，持续推送任务状态
func handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("WebSocket upgrade error:", err)
		return
	}
	defer conn.Close()

	taskID := r.URL.Query().Get("task_id")
	if taskID == "" {
		return
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		tasksMu.RLock()
		task, exists := tasks[taskID]
		tasksMu.RUnlock()

		if !exists {
			break
		}

		tasksMu.RLock()
		err := conn.WriteJSON(task)
		status := task.Status
		tasksMu.RUnlock()
		if err != nil {
			break
		}

		if status == "completed" || status == "failed" {
			break
		}
	}
}

// runAnalysis 执行分析
func runAnalysis(task *AnalysisTask) {
	updateTask := func(status, message string) {
		tasksMu.Lock()
		task.Status = status
		task.Message = message
		task.UpdatedAt = time.Now()
		tasksMu.Unlock()
	}

	req := task.request
	updateTask("running", "正在连接数据库...")

	dbCfg := config.DatabaseConfig{
		Type:     req.DBType,
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
		Database: req.Database,
		Schema:   req.Schema,
	}

	dbAdapter, err := openAdapter(dbCfg)
	if err != nil {
		updateTask("failed", fmt.Sprintf("连接失败: %v", err))
		return
	}
	defer dbAdapter.Close()

	var judge inference.Judge
	if req.EnableAI && req.APIKey != "" {
		judge = ai.NewAlibabaClient(req.APIKey)
	}

	threshold := inference.Weak
	if req.Threshold != "" {
		parsed, err := inference.ParseConfidence(req.Threshold)
		if err != nil {
			updateTask("failed", fmt.Sprintf("入图阈值无效: %v", err))
			return
		}
		threshold = parsed
	}

	engine := inference.NewEngine(dbAdapter, judge, inference.Options{
		SampleSize:       req.SampleSize,
		MinSample:        req.MinSample,
		Workers:          req.Workers,
		IncludeThreshold: threshold,
	})
	engine.SetProgress(func(msg string) {
		updateTask("running", msg)
	})

	result, err := engine.Run()
	if err != nil {
		updateTask("failed", fmt.Sprintf("分析失败: %v", err))
		return
	}

	graphJSON, _ := result.Graph.ToJSON()
	csvContent, _ := renderer.NewCSVRenderer().Render(result.Relationships)

	included := 0
	for _, rel := range result.Relationships {
		if rel.UsedInGraph {
			included++
		}
	}

	analysisResult := &AnalysisResult{
		GraphJSON:        string(graphJSON),
		RelationshipsCSV: csvContent,
		ReportMD:         renderer.NewMarkdownRenderer().Render(result),
		ErMermaid:        renderer.NewMermaidRenderer().Render(result.Graph),
		Relationships:    result.Relationships,
		Stats: map[string]int{
			"tables":        len(result.Tables),
			"skipped":       len(result.Skipped),
			"relationships": len(result.Relationships),
			"included":      included,
			"lookup_tables": len(result.Lookups),
		},
	}

	tasksMu.Lock()
	task.Result = analysisResult
	tasksMu.Unlock()

	updateTask("completed", "分析完成！")
}

func openAdapter(db config.DatabaseConfig) (adapter.DBAdapter, error) {
	dsn, err := db.DSN()
	if err != nil {
		return nil, err
	}
	switch db.Type {
	case "mysql":
		return adapter.NewMySQLAdapter(dsn, db.EffectiveSchema())
	case "sqlserver":
		return adapter.NewSQLServerAdapter(dsn)
	case "postgres":
		return adapter.NewPostgresAdapter(dsn, db.EffectiveSchema())
	}
	return nil, fmt.Errorf("不支持的数据库类型: %s", db.Type)
}

// handleTestConnection 测试数据库连接
func handleTestConnection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, db, err := openRawConnection(r)
	if err != nil {
		writeJSON(w, map[string]interface{}{
			"success": false,
			"message": fmt.Sprintf("连接失败: %v", err),
		})
		return
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		writeJSON(w, map[string]interface{}{
			"success": false,
			"message": fmt.Sprintf("连接失败: %v", err),
		})
		return
	}

	writeJSON(w, map[string]interface{}{
		"success": true,
		"message": "连接成功！",
	})
}

// handleListDatabases 列出所有数据库
func handleListDatabases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, db, err := openRawConnection(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer db.Close()

	var query string
	switch req.DBType {
	case "mysql":
		query = "SHOW DATABASES"
	case "sqlserver":
		query = "SELECT name FROM sys.databases WHERE name NOT IN ('master', 'tempdb', 'model', 'msdb')"
	case "postgres":
		query = "SELECT datname FROM pg_database WHERE NOT datistemplate"
	}

	rows, err := db.Query(query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var databases []string
	for rows.Next() {
		var dbName string
		if err := rows.Scan(&dbName); err != nil {
			continue
		}
		// 过滤系统数据库
		if req.DBType == "mysql" {
			if dbName == "information_schema" || dbName == "mysql" ||
				dbName == "performance_schema" || dbName == "sys" {
				continue
			}
		}
		databases = append(databases, dbName)
	}

	writeJSON(w, map[string]interface{}{
		"success":   true,
		"databases": databases,
	})
}

// openRawConnection 不指定库名的裸连接（测试连接、列库共用）
func openRawConnection(r *http.Request) (*AnalysisRequest, *sql.DB, error) {
	var req AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, nil, err
	}

	var connStr, driver string
	switch req.DBType {
	case "mysql":
		driver = "mysql"
		connStr = fmt.Sprintf("%s:%s@tcp(%s:%s)/?timeout=10s",
			req.Username, req.Password, req.Host, req.Port)
	case "sqlserver":
		driver = "sqlserver"
		connStr = fmt.Sprintf("server=%s;port=%s;user id=%s;password=%s",
			req.Host, req.Port, req.Username, req.Password)
	case "postgres":
		driver = "postgres"
		connStr = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=postgres sslmode=disable connect_timeout=10",
			req.Host, req.Port, req.Username, req.Password)
	default:
		return nil, nil, fmt.Errorf("不支持的数据库类型: %s", req.DBType)
	}

	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, nil, err
	}
	return &req, db, nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
