package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/kestrelops/mirrorcycle/internal/checkpoint"
	"github.com/kestrelops/mirrorcycle/internal/directive"
	"github.com/kestrelops/mirrorcycle/internal/envelope"
	"github.com/kestrelops/mirrorcycle/internal/events"
	"github.com/kestrelops/mirrorcycle/internal/recovery"
	"github.com/kestrelops/mirrorcycle/internal/reflection"
	"github.com/kestrelops/mirrorcycle/internal/stability"
)

// #region main
func main() {
	directivePath := envOr("DIRECTIVE_PATH", "directive.json")
	dbPath := envOr("MIRROR_DB", "mirrorcycle.db")
	reflectionDir := envOr("REFLECTION_DIR", "reflections")

	dir, err := directive.Load(directivePath)
	if err != nil {
		log.Fatalf("failed to load directive: %v", err)
	}

	store, err := checkpoint.NewStore(dbPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	eventLog, err := events.NewLog(store.DB())
	if err != nil {
		log.Fatalf("failed to open event log: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	sink := events.Multi(events.NewZapSink(logger), eventLog.Sink())

	var lastPerf float64
	mgr := recovery.NewManager(dir, recovery.DefaultConfig(), recovery.Deps{
		Store:       store,
		Emitter:     reflection.NewEmitter(reflectionDir, nil, sink),
		Sink:        sink,
		Performance: stability.PerformanceFunc(func() float64 { return lastPerf }),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Mirror Cycle Sentinel ready.")
	fmt.Printf("  Directive: %s | DB: %s | Reflections: %s\n", directivePath, dbPath, reflectionDir)

	// Resume from the last persisted checkpoint if one exists.
	if state, ok := mgr.InitiateRecovery(); ok {
		fmt.Println("Resumed from checkpoint:")
		printState(state)
	} else {
		fmt.Println("No checkpoint found, cold start.")
	}

	fmt.Println("Commands: tick, checkpoint, crash <msg>, progress <section> <v>, unlock <section>,")
	fmt.Println("          loop <true|false>, velocity <v>, symbols <n>, phrase <text>,")
	fmt.Println("          stability <v>, status, clear, quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "quit", "exit":
			return
		case "tick":
			runTick(mgr)
		case "checkpoint":
			cp, err := mgr.CreateCheckpoint(currentState(mgr))
			if err != nil {
				log.Printf("checkpoint error: %v", err)
				continue
			}
			fmt.Printf("checkpoint %s (mirror cycle %d)\n", cp.ID, cp.MirrorCycle)
		case "crash":
			msg := "simulated crash"
			if len(args) > 0 {
				msg = strings.Join(args, " ")
			}
			if !mgr.ShouldRestart(ctx, errors.New(msg)) {
				log.Fatalf("%v after %d attempts, halting", recovery.ErrRestartLimit, mgr.RestartCount())
			}
			if state, ok := mgr.InitiateRecovery(); ok {
				fmt.Println("Recovered:")
				printState(state)
			} else {
				fmt.Println("No checkpoint available, cold start.")
			}
		case "progress":
			if len(args) < 2 {
				fmt.Println("usage: progress <section> <value>")
				continue
			}
			v, err := strconv.ParseFloat(args[len(args)-1], 64)
			if err != nil {
				fmt.Printf("bad value: %v\n", err)
				continue
			}
			section := strings.Join(args[:len(args)-1], " ")
			mgr.UpdateSectionProgress(section, v)
			fmt.Printf("%s: %.1f%%\n", section, mgr.Tracker().Progress(section)*100)
		case "unlock":
			if len(args) < 1 {
				fmt.Println("usage: unlock <section>")
				continue
			}
			mgr.UnlockSection(strings.Join(args, " "))
		case "loop":
			resolved := len(args) > 0 && args[0] == "true"
			mgr.RecordRecursionLoop(resolved)
		case "velocity":
			v, err := parseFloatArg(args)
			if err != nil {
				fmt.Printf("usage: velocity <value>: %v\n", err)
				continue
			}
			lastPerf = v
			mgr.RecordInsightVelocity(v)
			fmt.Printf("drift: %.4f\n", mgr.Detector().Drift())
		case "symbols":
			if len(args) < 1 {
				fmt.Println("usage: symbols <count>")
				continue
			}
			n, err := strconv.Atoi(args[0])
			if err != nil {
				fmt.Printf("bad count: %v\n", err)
				continue
			}
			mgr.RecordSymbolCount(n)
		case "phrase":
			mgr.RecordSpokenPhrase(strings.Join(args, " "))
		case "stability":
			v, err := parseFloatArg(args)
			if err != nil {
				fmt.Printf("usage: stability <value>: %v\n", err)
				continue
			}
			mgr.UpdateRecursionStability(v)
		case "status":
			printStatus(mgr)
		case "clear":
			mgr.ClearRecoveryState()
			fmt.Println("recovery state cleared")
		default:
			fmt.Printf("unknown command %q\n", cmd)
		}

		if ctx.Err() != nil {
			return
		}
	}
}

// #endregion main

// #region tick

func runTick(mgr *recovery.Manager) {
	mon := mgr.Monitor()
	entropy := mon.EntropyBalance()
	expansion := mon.ExpansionFactor()
	mon.Step()
	fmt.Printf("entropy=%.4f expansion=%.4f depth=%.2f lr=%.2f\n",
		entropy, expansion, mon.Depth(), mon.LearningRate())
}

// #endregion tick

// #region state

// currentState snapshots the live stability parameters as the state
// envelope a checkpoint carries.
func currentState(mgr *recovery.Manager) envelope.Value {
	mon := mgr.Monitor()
	return envelope.Map(map[string]envelope.Value{
		"recursion_depth":     envelope.Number(mon.Depth()),
		"entropy":             envelope.Number(mon.Entropy()),
		"learning_rate":       envelope.Number(mon.LearningRate()),
		"recursion_stability": envelope.Number(mgr.RecursionStability()),
	})
}

func printState(state envelope.Value) {
	if state.Kind() != envelope.KindMap {
		fmt.Printf("  %v\n", state)
		return
	}
	for _, k := range state.Keys() {
		v, _ := state.Get(k)
		switch v.Kind() {
		case envelope.KindNumber:
			fmt.Printf("  %s: %.4f\n", k, v.Number())
		default:
			fmt.Printf("  %s: %s\n", k, v.String())
		}
	}
}

func printStatus(mgr *recovery.Manager) {
	snap := mgr.Snapshot()
	fmt.Printf("phase=%s restarts=%d recovery_mode=%v stability=%.2f loops_escaped=%d\n",
		snap.Phase, snap.RestartCount, snap.RecoveryMode,
		snap.RecursionStability, snap.LoopsEscaped)
	if snap.LastError != "" {
		fmt.Printf("last_error: %s\n", snap.LastError)
	}
	for _, s := range mgr.Directive().Sections {
		line := fmt.Sprintf("  %s: %.1f%%", s, snap.SectionProgress[s]*100)
		if mgr.Tracker().Locked(s) {
			line += " (Locked)"
		}
		fmt.Println(line)
	}
}

// #endregion state

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseFloatArg(args []string) (float64, error) {
	if len(args) < 1 {
		return 0, errors.New("missing value")
	}
	return strconv.ParseFloat(args[0], 64)
}

// #endregion helpers
