// Command dittosmb is a small SMB2 metadata client: it connects to a
// share described in the configuration file and runs a single
// filesystem operation as one compound wire transaction.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/protocol/smb/compound"
	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
	"github.com/marmos91/dittosmb/pkg/config"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: "+config.GetDefaultConfigPath()+")")
	posix := flag.Bool("posix", false, "use the SMB3.1.1 POSIX information level for stat")
	mode := flag.Uint("mode", 0o755, "POSIX mode for mkdir (requires a POSIX mount)")
	timeout := flag.Duration("timeout", 30*time.Second, "overall operation timeout")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	metricsResult := config.InitializeMetrics(cfg)
	if metricsResult.Server != nil {
		go func() {
			if err := metricsResult.Server.Start(); err != nil {
				logger.Error("metrics server failed: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, tcp, err := config.CreateConnection(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting: %v\n", err)
		os.Exit(1)
	}
	defer tcp.Close()

	engine := compound.New(conn, compound.WithMetrics(metricsResult.Compound))

	if err := run(ctx, engine, flag.Args(), *posix, uint32(*mode)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if conn.NeedsReconnect() {
		logger.Warn("connection was marked for reconnect during the operation")
	}
}

// run dispatches one operation. args[0] is the operation name; the rest
// are its path arguments.
func run(ctx context.Context, engine *compound.Engine, args []string, posix bool, mode uint32) error {
	op := args[0]
	rest := args[1:]

	switch op {
	case "stat":
		if len(rest) != 1 {
			return fmt.Errorf("usage: stat <path>")
		}
		var info *compound.PathInfo
		var err error
		if posix {
			info, err = engine.PosixQueryPathInfo(ctx, rest[0])
		} else {
			info, err = engine.QueryPathInfo(ctx, rest[0])
		}
		if err != nil {
			return err
		}
		printInfo(rest[0], info, posix)
		return nil

	case "mkdir":
		if len(rest) != 1 {
			return fmt.Errorf("usage: mkdir <path>")
		}
		return engine.Mkdir(ctx, rest[0], mode)

	case "rmdir":
		if len(rest) != 1 {
			return fmt.Errorf("usage: rmdir <path>")
		}
		return engine.Rmdir(ctx, rest[0])

	case "rm":
		if len(rest) != 1 {
			return fmt.Errorf("usage: rm <path>")
		}
		return engine.Unlink(ctx, rest[0])

	case "mv":
		if len(rest) != 2 {
			return fmt.Errorf("usage: mv <from> <to>")
		}
		return engine.Rename(ctx, rest[0], rest[1])

	case "ln":
		if len(rest) != 2 {
			return fmt.Errorf("usage: ln <from> <to>")
		}
		return engine.Hardlink(ctx, rest[0], rest[1])

	case "truncate":
		if len(rest) != 2 {
			return fmt.Errorf("usage: truncate <path> <size>")
		}
		size, err := strconv.ParseUint(rest[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad size %q: %w", rest[1], err)
		}
		return engine.SetPathSize(ctx, rest[0], size)

	case "touch":
		if len(rest) != 1 {
			return fmt.Errorf("usage: touch <path>")
		}
		now := types.FiletimeFromTime(time.Now())
		return engine.SetFileInfo(ctx, rest[0], &types.FileBasicInfo{
			LastAccessTime: now,
			LastWriteTime:  now,
		})

	default:
		return fmt.Errorf("unknown operation %q", op)
	}
}

func printInfo(path string, info *compound.PathInfo, posix bool) {
	fmt.Printf("Path: %s\n", displayPath(path))
	if posix {
		fmt.Printf("Size: %d\n", info.Posix.EndOfFile)
		fmt.Printf("Mode: %o\n", info.Posix.Mode)
		fmt.Printf("Links: %d\n", info.Posix.HardLinks)
		fmt.Printf("Inode: %d\n", info.Posix.Inode)
		fmt.Printf("Modified: %s\n", info.Posix.LastWriteTime.Time())
	} else {
		fmt.Printf("Size: %d\n", info.All.EndOfFile)
		fmt.Printf("Attributes: 0x%X\n", info.All.Attributes)
		fmt.Printf("Links: %d\n", info.All.NumberOfLinks)
		fmt.Printf("Directory: %v\n", info.All.Directory != 0)
		fmt.Printf("Modified: %s\n", info.All.LastWriteTime.Time())
	}
	if info.Reparse {
		fmt.Printf("Reparse point -> %s\n", info.SymlinkTarget)
	}
}

func displayPath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: dittosmb [flags] <operation> [args]

Operations:
  stat <path>              Query file attributes
  mkdir <path>             Create a directory
  rmdir <path>             Remove a directory
  rm <path>                Remove a file
  mv <from> <to>           Rename, replacing an existing target
  ln <from> <to>           Create a hard link
  truncate <path> <size>   Set the file size
  touch <path>             Update access and modification times

Flags:
`)
	flag.PrintDefaults()
}
