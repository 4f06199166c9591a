package decodecore

import (
	"fmt"
	"log"

	"github.com/spf13/viper"
)

// StackConfig is the persisted shape of a DecoderStack: just enough to
// rebuild the decoder chain and its committed channel maps, options and
// decode region on the next run. Annotation data itself is never
// persisted, only the configuration that produces it.
type StackConfig struct {
	RPCPort   int             `mapstructure:"rpcport"`
	PubPort   int             `mapstructure:"pubport"`
	Decoders  []DecoderConfig `mapstructure:"decoders"`
	RowsLShow map[string]bool `mapstructure:"rows_lshow"`
}

// DecoderConfig is one decoder's persisted settings.
type DecoderConfig struct {
	Handle      string                     `mapstructure:"handle"`
	DecoderID   DecoderID                  `mapstructure:"decoderid"`
	Probes      map[string]int             `mapstructure:"probes"`
	Options     map[string]WireOptionValue `mapstructure:"options"`
	DecodeStart uint64                     `mapstructure:"decodestart"`
	DecodeEnd   uint64                     `mapstructure:"decodeend"`
}

// LoadStackConfig reads the "rpcport", "pubport", "decoders" and
// "rows_lshow" keys out of whatever
// config file viper has already located, mirroring the teacher's pattern of
// unmarshalling one named key per subsystem rather than the whole tree.
func LoadStackConfig() (StackConfig, error) {
	var cfg StackConfig
	if err := viper.UnmarshalKey("rpcport", &cfg.RPCPort); err != nil {
		return cfg, fmt.Errorf("decodecore: read rpcport: %w", err)
	}
	if err := viper.UnmarshalKey("pubport", &cfg.PubPort); err != nil {
		return cfg, fmt.Errorf("decodecore: read pubport: %w", err)
	}
	if err := viper.UnmarshalKey("decoders", &cfg.Decoders); err != nil {
		return cfg, fmt.Errorf("decodecore: read decoders: %w", err)
	}
	if err := viper.UnmarshalKey("rows_lshow", &cfg.RowsLShow); err != nil {
		return cfg, fmt.Errorf("decodecore: read rows_lshow: %w", err)
	}
	if cfg.RPCPort == 0 {
		cfg.RPCPort = 5676
	}
	if cfg.PubPort == 0 {
		cfg.PubPort = 5677
	}
	return cfg, nil
}

// SaveStackConfig snapshots the committed state of every decoder known to
// control back into viper's in-memory tree and writes it to disk.
func SaveStackConfig(control *DecoderControl, rpcPort, pubPort int) error {
	decoders := make([]DecoderConfig, 0, len(control.decoders))
	for handle, dec := range control.decoders {
		wireOptions := make(map[string]WireOptionValue)
		for key, val := range dec.Options() {
			wire, err := val.ToWire()
			if err != nil {
				log.Printf("decodecore: skip option %s on %s: %v", key, handle, err)
				continue
			}
			wireOptions[key] = wire
		}
		probes := make(map[string]int)
		for ch, idx := range dec.Channels() {
			probes[ch.ID] = idx
		}
		decoders = append(decoders, DecoderConfig{
			Handle:      handle,
			DecoderID:   dec.ID(),
			Probes:      probes,
			Options:     wireOptions,
			DecodeStart: dec.DecodeStart(),
			DecodeEnd:   dec.DecodeEnd(),
		})
	}

	viper.Set("rpcport", rpcPort)
	viper.Set("pubport", pubPort)
	viper.Set("decoders", decoders)
	viper.Set("rows_lshow", control.stack.VisibilityByTitleID())

	if err := viper.WriteConfig(); err != nil {
		return fmt.Errorf("decodecore: write config: %w", err)
	}
	return nil
}

// InitViper locates and reads the decodecore config file, creating an empty
// one on first run rather than failing.
func InitViper(configDir string) error {
	viper.SetConfigName("decodecore")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("no existing config at %s, starting fresh", configDir)
			return viper.SafeWriteConfig()
		}
		return fmt.Errorf("decodecore: read config: %w", err)
	}
	return nil
}
