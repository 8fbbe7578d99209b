package swarm

import (
	"os"

	"gopkg.in/yaml.v2"
)

// Settings holds the per-torrent tunables of the policy engine.
type Settings struct {
	// Max number of peer records kept in the directory.
	MaxPeerlistSize int `yaml:"max_peerlist_size"`
	// Directory limit used while the torrent is paused.
	MaxPausedPeerlistSize int `yaml:"max_paused_peerlist_size"`
	// Peers that failed this many connection attempts are not dialed again.
	MaxFailcount int `yaml:"max_failcount"`
	// Seconds to wait before redialing a peer. Scales with the peer's failcount.
	MinReconnectTime int `yaml:"min_reconnect_time"`
	// A peer whose download rate would fetch a whole piece in less than
	// whole_pieces_threshold seconds is asked for whole pieces.
	WholePiecesThreshold int `yaml:"whole_pieces_threshold"`
	// Keep one record per (IP, port) pair instead of one per IP.
	AllowMultipleConnectionsPerIP bool `yaml:"allow_multiple_connections_per_ip"`
}

var DefaultSettings = Settings{
	MaxPeerlistSize:       4000,
	MaxPausedPeerlistSize: 4000,
	MaxFailcount:          3,
	MinReconnectTime:      60,
	WholePiecesThreshold:  20,
}

// LoadSettings reads Settings from a yaml file.
// A missing file yields the defaults.
func LoadSettings(filename string) (*Settings, error) {
	s := DefaultSettings
	b, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return &s, nil
	}
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
