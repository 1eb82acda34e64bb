package cmd

import (
	"fmt"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"os"
	"os/exec"
	"strings"
)

var stopCmd = &cobra.Command{
	Use:          "stop",
	Short:        "Stop the server",
	RunE:         stopCmdF,
	SilenceUsage: true,
}

func init() {
	RootCmd.AddCommand(stopCmd)
}

func stopCmdF(cmd *cobra.Command, args []string) error {
	// 获取应用名
	_, dir := getAppDir()

	// 关闭服务器
	file := fmt.Sprintf("%s/%s", dir, lockFile)
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("Unable to read pid file %q: %w", file, err)
	}
	pid := strings.TrimSpace(string(data))
	if err := exec.Command("kill", pid).Run(); err != nil {
		return fmt.Errorf("Unable to stop [PID] %s: %w", pid, err)
	}
	os.Remove(file)
	log.Infof("Server stop, [PID] %s", pid)

	return nil
}
