package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"syscall"

	"relation-mapper/internal/adapter"
	"relation-mapper/internal/ai"
	"relation-mapper/internal/config"
	"relation-mapper/internal/inference"
	"relation-mapper/internal/renderer"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	configPath string
	dbType     string
	host       string
	port       string
	username   string
	password   string
	database   string
	schema     string
	outputDir  string
	sampleSize int
	minSample  int
	workers    int
	threshold  string
	enableAI   bool
	aiAPIKey   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "relation-mapper",
		Short: "数据库关系推断器",
		Long:  "从缺失外键约束的数据库中推断、验证表间关系，输出带置信度分级的关系图",
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "分析数据库并推断表间关系",
		Run:   runAnalyze,
	}

	analyzeCmd.Flags().StringVar(&configPath, "config", "", "YAML 配置文件路径（命令行参数优先）")
	analyzeCmd.Flags().StringVar(&dbType, "type", "mysql", "数据库类型 (mysql/sqlserver/postgres)")
	analyzeCmd.Flags().StringVar(&host, "host", "localhost", "主机地址")
	analyzeCmd.Flags().StringVar(&port, "port", "", "端口（缺省按数据库类型取默认值）")
	analyzeCmd.Flags().StringVar(&username, "user", "", "用户名")
	analyzeCmd.Flags().StringVar(&password, "password", "", "密码（留空则交互输入或取环境变量 DB_PASSWORD）")
	analyzeCmd.Flags().StringVar(&database, "database", "", "数据库名")
	analyzeCmd.Flags().StringVar(&schema, "schema", "", "schema（MySQL 缺省取数据库名）")
	analyzeCmd.Flags().StringVar(&outputDir, "output", "./output", "输出目录")
	analyzeCmd.Flags().IntVar(&sampleSize, "sample", inference.DefaultSampleSize, "采样大小")
	analyzeCmd.Flags().IntVar(&minSample, "min-sample", inference.DefaultMinSample, "经验证据主导评分的最小样本量")
	analyzeCmd.Flags().IntVar(&workers, "workers", 4, "验证并发度")
	analyzeCmd.Flags().StringVar(&threshold, "threshold", "weak", "入图阈值（很弱的关系只记录不入图）")
	analyzeCmd.Flags().BoolVar(&enableAI, "enable-ai", false, "启用外部评级（需要 API Key）")
	analyzeCmd.Flags().StringVar(&aiAPIKey, "ai-key", "", "评级 API Key（或使用环境变量 DASHSCOPE_API_KEY）")

	rootCmd.AddCommand(analyzeCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func runAnalyze(cmd *cobra.Command, args []string) {
	// .env 不存在也无妨
	_ = godotenv.Load()

	cfg := buildConfig(cmd)

	fmt.Println("🔍 开始分析数据库...")

	dbAdapter, err := openAdapter(cfg.Database)
	if err != nil {
		log.Fatalf("连接数据库失败: %v", err)
	}
	defer dbAdapter.Close()
	fmt.Println("✓ 数据库连接成功")

	var judge inference.Judge
	if cfg.AI.Enabled {
		if cfg.AI.APIKey == "" {
			fmt.Println("⚠️  未提供 API Key，跳过外部评级")
			fmt.Println("   提示：使用 --ai-key 或设置环境变量 DASHSCOPE_API_KEY")
		} else {
			judge = ai.NewAlibabaClient(cfg.AI.APIKey)
		}
	}

	includeThreshold, err := inference.ParseConfidence(cfg.Analysis.IncludeThreshold)
	if err != nil {
		log.Fatalf("入图阈值无效: %v", err)
	}

	engine := inference.NewEngine(dbAdapter, judge, inference.Options{
		SampleSize:       cfg.Analysis.SampleSize,
		MinSample:        cfg.Analysis.MinSample,
		Workers:          cfg.Analysis.Workers,
		IncludeThreshold: includeThreshold,
	})
	engine.SetProgress(func(msg string) {
		fmt.Printf("  %s\n", msg)
	})

	result, err := engine.Run()
	if err != nil {
		log.Fatalf("分析失败: %v", err)
	}

	printSummary(result)
	writeOutputs(result)

	fmt.Println("\n✅ 分析完成！")
}

// buildConfig 合并配置文件、命令行参数和交互输入
func buildConfig(cmd *cobra.Command) *config.Config {
	cfg := &config.Config{}
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}

	// 命令行显式给出的参数覆盖配置文件
	setIfChanged := func(flag string, dst *string, val string) {
		if cmd.Flags().Changed(flag) || *dst == "" {
			*dst = val
		}
	}
	setIfChanged("type", &cfg.Database.Type, dbType)
	setIfChanged("host", &cfg.Database.Host, host)
	setIfChanged("port", &cfg.Database.Port, port)
	setIfChanged("user", &cfg.Database.Username, username)
	setIfChanged("password", &cfg.Database.Password, password)
	setIfChanged("database", &cfg.Database.Database, database)
	setIfChanged("schema", &cfg.Database.Schema, schema)
	setIfChanged("threshold", &cfg.Analysis.IncludeThreshold, threshold)
	setIfChanged("ai-key", &cfg.AI.APIKey, aiAPIKey)

	if cmd.Flags().Changed("sample") || cfg.Analysis.SampleSize == 0 {
		cfg.Analysis.SampleSize = sampleSize
	}
	if cmd.Flags().Changed("min-sample") || cfg.Analysis.MinSample == 0 {
		cfg.Analysis.MinSample = minSample
	}
	if cmd.Flags().Changed("workers") || cfg.Analysis.Workers == 0 {
		cfg.Analysis.Workers = workers
	}
	if cmd.Flags().Changed("enable-ai") {
		cfg.AI.Enabled = enableAI
	}

	cfg.ApplyEnv()

	if cfg.Database.Port == "" {
		cfg.Database.Port = defaultPort(cfg.Database.Type)
	}
	if cfg.Database.Database == "" {
		log.Fatal("必须指定 --database")
	}
	if cfg.Database.Password == "" {
		cfg.Database.Password = promptPassword(cfg.Database.Username)
	}

	return cfg
}

func defaultPort(dbType string) string {
	switch dbType {
	case "mysql":
		return "3306"
	case "sqlserver":
		return "1433"
	case "postgres":
		return "5432"
	}
	return ""
}

// promptPassword 终端免回显输入密码
func promptPassword(user string) string {
	fmt.Printf("请输入 %s 的密码: ", user)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		log.Fatalf("读取密码失败: %v", err)
	}
	return string(raw)
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

// printSummary 终端输出关系摘要表
func printSummary(result *inference.Result) {
	if len(result.Relationships) == 0 {
		fmt.Println("\n未发现任何候选关系")
		return
	}

	fmt.Println()
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"源", "目标", "置信度", "匹配率", "样本数", "状态"})
	for _, rel := range result.Relationships {
		table.Append([]string{
			fmt.Sprintf("%s.%s", rel.SourceTable, rel.SourceColumn),
			fmt.Sprintf("%s.%s", rel.TargetTable, rel.TargetColumn),
			rel.Confidence.String(),
			fmt.Sprintf("%.1f%%", rel.MatchedFraction*100),
			fmt.Sprintf("%d", rel.SampleSize),
			string(rel.State),
		})
	}
	table.Render()
}

// writeOutputs 写出 CSV / JSON / Markdown / Mermaid
func writeOutputs(result *inference.Result) {
	fmt.Println("\n📝 生成输出文件...")
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		log.Fatalf("创建输出目录失败: %v", err)
	}

	csvContent, err := renderer.NewCSVRenderer().Render(result.Relationships)
	if err != nil {
		log.Fatalf("生成 CSV 失败: %v", err)
	}
	writeFile("relationships.csv", []byte(csvContent))

	jsonData, err := result.Graph.ToJSON()
	if err != nil {
		log.Fatalf("生成图 JSON 失败: %v", err)
	}
	writeFile("graph.json", jsonData)

	writeFile("report.md", []byte(renderer.NewMarkdownRenderer().Render(result)))
	writeFile("er.mmd", []byte(renderer.NewMermaidRenderer().Render(result.Graph)))
}

func writeFile(name string, data []byte) {
	path := filepath.Join(outputDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Fatalf("写入 %s 失败: %v", path, err)
	}
	fmt.Printf("✓ %s\n", path)
}
