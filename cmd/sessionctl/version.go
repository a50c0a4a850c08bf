package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
)

type versionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
}

// NewVersionCmd 创建 version 命令
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versionInfo{
				Version:   Version,
				BuildTime: BuildTime,
				GitCommit: GitCommit,
				GoVersion: runtime.Version(),
			}
			return printResult(cmd, info, func(w io.Writer) {
				fmt.Fprintf(w, "sessionctl %s\n", info.Version)
				fmt.Fprintf(w, "  Build Time: %s\n", info.BuildTime)
				fmt.Fprintf(w, "  Git Commit: %s\n", info.GitCommit)
				fmt.Fprintf(w, "  Go:         %s\n", info.GoVersion)
			})
		},
	}
}
