package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"rpclink/internal/config"
	"rpclink/internal/utils"
	"rpclink/pkg"
)

// 命令行选项
type options struct {
	configPath string
	service    string
	handler    string
	method     string
	argsJSON   string
	timeout    time.Duration
}

func main() {
	opts := parseCommandLine()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "rpccall: %v\n", err)
		os.Exit(1)
	}
}

// parseCommandLine 解析命令行参数
func parseCommandLine() options {
	var opts options
	flag.StringVar(&opts.configPath, "config", "config.yaml", "配置文件路径")
	flag.StringVar(&opts.service, "service", "", "服务名称，如 user.1")
	flag.StringVar(&opts.handler, "handler", "", "远端接收单元名称")
	flag.StringVar(&opts.method, "method", "", "远程方法名称")
	flag.StringVar(&opts.argsJSON, "args", "[]", "调用参数，JSON数组")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Second, "整体调用超时")
	flag.Parse()
	return opts
}

func run(opts options) error {
	if opts.service == "" || opts.method == "" {
		return fmt.Errorf("both -service and -method are required")
	}

	var args []interface{}
	if err := json.Unmarshal([]byte(opts.argsJSON), &args); err != nil {
		return fmt.Errorf("invalid -args: %w", err)
	}

	provider := config.NewFileProvider(nil)
	if err := provider.Load(opts.configPath); err != nil {
		return err
	}

	logger, err := utils.NewLogger(provider.Get().Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	client := pkg.NewClient(provider, pkg.WithLogger(logger))
	defer client.Close()

	caller, err := client.Service(opts.service)
	if err != nil {
		return err
	}
	if opts.handler != "" {
		caller = caller.Handler(opts.handler)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	result, err := caller.Invoke(ctx, opts.method, args...)
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))

	logger.Info("call completed",
		zap.String("service", opts.service),
		zap.String("method", opts.method))
	return nil
}
