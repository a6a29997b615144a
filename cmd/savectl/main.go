// savectl 用于在不注册具体类型的情况下查看与校验存档目录。
//
//	savectl [--config path] [--root dir] list
//	savectl [--config path] [--root dir] inspect <name>
//	savectl [--config path] [--root dir] validate <name>...
//	savectl [--config path] [--root dir] dump <name>
package main

import (
	"os"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/lk2023060901/simsave/pkg/log"
)

func main() {
	undo, _ := maxprocs.Set(maxprocs.Logger(log.S().Debugf))
	defer undo()

	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
