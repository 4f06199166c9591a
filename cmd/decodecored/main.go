// Command decodecored runs the decoder-pipeline core as a standalone
// process: it loads configuration, starts the WebAssembly decoder engine,
// and serves the RPC control surface until interrupted.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"

	decodecore "github.com/scopeworks/decodecore"
	"github.com/scopeworks/decodecore/engine"
)

func main() {
	configDir := flag.String("configdir", defaultConfigDir(), "directory holding decodecore.yaml")
	wasmDir := flag.String("wasmdir", "./decoders", "directory of compiled decoder .wasm modules")
	flag.Parse()

	if err := decodecore.InitViper(*configDir); err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg, err := decodecore.LoadStackConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	eng := engine.NewEngine(ctx)
	defer eng.Close(ctx)

	if err := loadDecoderModules(ctx, eng, *wasmDir); err != nil {
		log.Fatalf("engine: %v", err)
	}

	stack := decodecore.NewDecoderStack(eng)
	clientUpdates := make(chan decodecore.ClientUpdate, 64)
	control := decodecore.NewDecoderControl(stack, clientUpdates)

	restoreDecoders(control, cfg)
	var committed bool
	control.Commit(nil, &committed)
	stack.ApplyVisibilityByTitleID(cfg.RowsLShow)

	go drainClientUpdates(clientUpdates)

	publisher := decodecore.NewSignalPublisher(cfg.PubPort)
	defer publisher.Close()
	stop := make(chan struct{})
	defer close(stop)
	publisher.AttachToStack(stack, stop)

	if err := decodecore.RunRPCServer(control, cfg.RPCPort, true); err != nil {
		log.Fatalf("rpc server: %v", err)
	}

	if err := decodecore.SaveStackConfig(control, cfg.RPCPort, cfg.PubPort); err != nil {
		log.Printf("save config on exit: %v", err)
	}
}

func defaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "decodecore")
}

func loadDecoderModules(ctx context.Context, eng *engine.Engine, wasmDir string) error {
	entries, err := os.ReadDir(wasmDir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("no decoder directory at %s, starting with no decoders loaded", wasmDir)
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".wasm" {
			continue
		}
		path := filepath.Join(wasmDir, entry.Name())
		bytes, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		id := decodecore.DecoderID(entry.Name()[:len(entry.Name())-len(".wasm")])
		if err := eng.LoadDecoderModule(ctx, id, bytes); err != nil {
			return err
		}
		log.Printf("loaded decoder module %s", id)
	}
	return nil
}

func restoreDecoders(control *decodecore.DecoderControl, cfg decodecore.StackConfig) {
	for _, dc := range cfg.Decoders {
		var reply bool
		args := decodecore.AddSubDecoderArgs{
			Handle:     dc.Handle,
			Descriptor: decodecore.DecoderDescriptor{ID: dc.DecoderID},
		}
		if err := control.AddSubDecoder(&args, &reply); err != nil {
			log.Printf("restore decoder %s: %v", dc.Handle, err)
		}
	}
}

func drainClientUpdates(updates <-chan decodecore.ClientUpdate) {
	for update := range updates {
		_ = update
	}
}
