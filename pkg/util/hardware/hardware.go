package hardware

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"go.uber.org/zap"

	"github.com/lk2023060901/simsave/pkg/log"
)

// GetCPUNum 返回逻辑 CPU 核数，gopsutil 获取失败时退回 runtime.NumCPU。
func GetCPUNum() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		log.Warn("failed to get cpu counts, fallback to runtime", zap.Error(err))
		return runtime.NumCPU()
	}
	return n
}

// GetFreeDiskBytes 返回 path 所在文件系统的可用字节数。
func GetFreeDiskBytes(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}
