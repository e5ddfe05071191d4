package tool

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// SysInfoTool reports host information. The component argument narrows
// the report to one subsystem so "how much memory is free" does not
// read back the whole machine.
type SysInfoTool struct{}

func NewSysInfoTool() *SysInfoTool { return &SysInfoTool{} }

func (t *SysInfoTool) Name() string { return "get_system_info" }
func (t *SysInfoTool) Description() string {
	return "Get system information: OS, CPU, memory, disk, and network. Pass component to narrow the report."
}
func (t *SysInfoTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"component": {Type: "string", Description: "One of: all, cpu, memory, disk, network (default all)"},
		},
		nil,
	)
}

func (t *SysInfoTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	component := strings.ToLower(ArgsString(args, "component"))
	switch component {
	case "", "all":
		sections := []string{
			t.general(ctx),
			"CPU:\n" + indent(cpuInfo(ctx)),
			"Memory:\n" + indent(memoryInfo(ctx)),
			"Disk:\n" + indent(diskInfo(ctx)),
			"Network:\n" + indent(networkInfo()),
		}
		return strings.Join(sections, "\n\n"), nil
	case "cpu":
		return cpuInfo(ctx), nil
	case "memory":
		return memoryInfo(ctx), nil
	case "disk":
		return diskInfo(ctx), nil
	case "network":
		return networkInfo(), nil
	default:
		return "", fmt.Errorf("unknown component %q (want all, cpu, memory, disk, or network)", component)
	}
}

var startTime = time.Now()

func (t *SysInfoTool) general(ctx context.Context) string {
	hostname, _ := os.Hostname()
	lines := []string{
		fmt.Sprintf("Hostname: %s", hostname),
		fmt.Sprintf("OS: %s/%s", runtime.GOOS, runtime.GOARCH),
	}
	if ver := osVersion(ctx); ver != "" {
		lines = append(lines, fmt.Sprintf("OS Version: %s", ver))
	}
	if up := runCmd(ctx, "uptime"); up != "" {
		lines = append(lines, fmt.Sprintf("Uptime: %s", up))
	}
	lines = append(lines, fmt.Sprintf("Assistant Uptime: %.0f seconds", time.Since(startTime).Seconds()))
	return strings.Join(lines, "\n")
}

func runCmd(ctx context.Context, name string, args ...string) string {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return ""
	}
	return strings.TrimSpace(out.String())
}

func osVersion(ctx context.Context) string {
	switch runtime.GOOS {
	case "darwin":
		name := runCmd(ctx, "sw_vers", "-productName")
		ver := runCmd(ctx, "sw_vers", "-productVersion")
		return strings.TrimSpace(name + " " + ver)
	case "linux":
		if data, err := os.ReadFile("/etc/os-release"); err == nil {
			for _, line := range strings.Split(string(data), "\n") {
				if strings.HasPrefix(line, "PRETTY_NAME=") {
					return strings.Trim(strings.TrimPrefix(line, "PRETTY_NAME="), "\"")
				}
			}
		}
		return runCmd(ctx, "uname", "-r")
	}
	return ""
}

func cpuInfo(ctx context.Context) string {
	lines := []string{fmt.Sprintf("Logical Cores: %d", runtime.NumCPU())}

	switch runtime.GOOS {
	case "darwin":
		if model := runCmd(ctx, "sysctl", "-n", "machdep.cpu.brand_string"); model != "" {
			lines = append([]string{fmt.Sprintf("Model: %s", model)}, lines...)
		}
	case "linux":
		if data, err := os.ReadFile("/proc/cpuinfo"); err == nil {
			for _, line := range strings.Split(string(data), "\n") {
				if strings.HasPrefix(line, "model name") {
					if parts := strings.SplitN(line, ":", 2); len(parts) == 2 {
						lines = append([]string{fmt.Sprintf("Model: %s", strings.TrimSpace(parts[1]))}, lines...)
					}
					break
				}
			}
		}
		if data, err := os.ReadFile("/proc/loadavg"); err == nil {
			fields := strings.Fields(string(data))
			if len(fields) >= 3 {
				lines = append(lines, fmt.Sprintf("Load Average: %s %s %s", fields[0], fields[1], fields[2]))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func memoryInfo(ctx context.Context) string {
	switch runtime.GOOS {
	case "darwin":
		if totalBytes := runCmd(ctx, "sysctl", "-n", "hw.memsize"); totalBytes != "" {
			var total float64
			fmt.Sscanf(totalBytes, "%f", &total)
			return fmt.Sprintf("Total: %.0f GB", total/(1024*1024*1024))
		}
	case "linux":
		if data, err := os.ReadFile("/proc/meminfo"); err == nil {
			var total, available float64
			for _, line := range strings.Split(string(data), "\n") {
				if strings.HasPrefix(line, "MemTotal:") {
					fmt.Sscanf(line, "MemTotal: %f kB", &total)
				}
				if strings.HasPrefix(line, "MemAvailable:") {
					fmt.Sscanf(line, "MemAvailable: %f kB", &available)
				}
			}
			if total > 0 {
				lines := []string{fmt.Sprintf("Total: %.1f GB", total/1024/1024)}
				if available > 0 {
					lines = append(lines,
						fmt.Sprintf("Used: %.1f GB", (total-available)/1024/1024),
						fmt.Sprintf("Available: %.1f GB", available/1024/1024))
				}
				return strings.Join(lines, "\n")
			}
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return fmt.Sprintf("Process Alloc: %.1f MB\nProcess Sys: %.1f MB",
		float64(mem.Alloc)/1024/1024, float64(mem.Sys)/1024/1024)
}

func diskInfo(ctx context.Context) string {
	out := runCmd(ctx, "df", "-h", "/")
	if out == "" {
		return "Not available"
	}
	lines := strings.Split(out, "\n")
	if len(lines) >= 2 {
		return lines[0] + "\n" + lines[1]
	}
	return out
}

func networkInfo() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "Not available"
	}
	var lines []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}
		var parts []string
		for _, addr := range addrs {
			parts = append(parts, addr.String())
		}
		lines = append(lines, fmt.Sprintf("%s: %s", iface.Name, strings.Join(parts, ", ")))
	}
	if len(lines) == 0 {
		return "No active interfaces"
	}
	return strings.Join(lines, "\n")
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}
