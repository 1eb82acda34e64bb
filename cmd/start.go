package cmd

import (
	"context"
	"fmt"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"mining-coordinator/config"
	"mining-coordinator/core"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
)

const lockFile = "mc.lock"

var daemon bool
var startCmd = &cobra.Command{
	Use:          "start",
	Short:        "Start the server",
	RunE:         startCmdF,
	SilenceUsage: true,
}

func init() {
	RootCmd.AddCommand(startCmd)
	startCmd.Flags().BoolVarP(&daemon, "daemon", "d", false, "run with daemon?")
	RootCmd.RunE = startCmdF
}

func startCmdF(cmd *cobra.Command, args []string) error {
	// 加载配置文件
	cfg, err := loadConfig(cmd)
	if err != nil {
		log.Errorf("Error loading configuration: %v", err)
		return err
	}

	// 后台启动
	if daemon {
		return runDaemon(cmd)
	}

	interruptChan := make(chan os.Signal, 1)
	// 启动服务器
	return runServer(cfg, interruptChan)
}

func runDaemon(cmd *cobra.Command) error {
	// 获取应用名
	app, dir := getAppDir()

	// 拿到启动命令并自启动
	bin := fmt.Sprintf("%s/%s", dir, app)
	args := []string{"start"}
	if configPath, _ := cmd.Flags().GetString("config"); configPath != "" {
		args = append(args, "--config", configPath)
	}
	command := exec.Command(bin, args...)
	if err := command.Start(); err != nil {
		return fmt.Errorf("Unable to start daemon: %w", err)
	}

	// 打印日志
	log.Infof("Server start, [PID] %d running...", command.Process.Pid)
	return os.WriteFile(fmt.Sprintf("%s/%s", dir, lockFile), []byte(fmt.Sprintf("%d", command.Process.Pid)), 0666)
}

func runServer(cfg *config.Config, interruptChan chan os.Signal) error {
	initLogger(cfg.Logger)

	server := core.NewServer(cfg)
	defer server.Close()

	if err := server.Start(context.Background()); err != nil {
		log.Errorf("Fail to start server: %v", err)
		return err
	}

	// wait for kill signal before attempting to gracefully shutdown
	// the running service
	signal.Notify(interruptChan, syscall.SIGINT, syscall.SIGTERM)
	<-interruptChan
	log.Info("Shutting down")

	return nil
}

func initLogger(cfg *config.Logger) {
	if *cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	// Output to stdout instead of the default stderr
	log.SetOutput(os.Stdout)

	if *cfg.File != "" {
		file, err := os.OpenFile(*cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			log.SetOutput(file)
		} else {
			log.Info("Failed to log to file, using default stdout")
		}
	}

	level, err := log.ParseLevel(*cfg.Level)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", *cfg.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
