// Package config loads the coordinator's TOML configuration file (spec §6's
// externally-sourced key table) into typed pet.Config/mask.Config values,
// following the teacher's use of github.com/BurntSushi/toml for group and
// key files.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/xaynetwork/xaynet-coordinator/mask"
	"github.com/xaynetwork/xaynet-coordinator/pet"
)

// quorumTable mirrors one pet.{min,max}_{sum,update,sum2}_{count,time} group.
type quorumTable struct {
	MinCount int     `toml:"min_count"`
	MaxCount int     `toml:"max_count"`
	MinTime  float64 `toml:"min_time"`
	MaxTime  float64 `toml:"max_time"`
}

func (q quorumTable) toQuorumParams() pet.QuorumParams {
	return pet.QuorumParams{
		MinCount: q.MinCount,
		MaxCount: q.MaxCount,
		MinTime:  time.Duration(q.MinTime * float64(time.Second)),
		MaxTime:  time.Duration(q.MaxTime * float64(time.Second)),
	}
}

type petTable struct {
	SumProb    float64     `toml:"sum"`
	UpdateProb float64     `toml:"update"`
	Sum        quorumTable `toml:"sum_quorum"`
	Update     quorumTable `toml:"update_quorum"`
	Sum2       quorumTable `toml:"sum2_quorum"`
}

type maskTable struct {
	GroupType string `toml:"group_type"`
	DataType  string `toml:"data_type"`
	BoundType string `toml:"bound_type"`
	ModelType string `toml:"model_type"`
}

type modelTable struct {
	Length int `toml:"length"`
}

type apiTable struct {
	BindAddress string `toml:"bind_address"`
	TLSCert     string `toml:"tls_cert"`
	TLSKey      string `toml:"tls_key"`
	TLSDisable  bool   `toml:"tls_disable"`
}

// file is the raw shape of the TOML document; fields map 1:1 onto spec §6's
// key table (pet.*, mask.*, model.length, api.*).
type file struct {
	Pet   petTable   `toml:"pet"`
	Mask  maskTable  `toml:"mask"`
	Model modelTable `toml:"model"`
	API   apiTable   `toml:"api"`
}

// Config is the coordinator's fully validated, in-memory configuration.
type Config struct {
	Pet pet.Config

	BindAddress string
	TLSCert     string
	TLSKey      string
	TLSDisable  bool
}

var groupTypes = map[string]mask.GroupType{"prime": mask.GroupPrime, "integer": mask.GroupInteger}
var dataTypes = map[string]mask.DataType{"f32": mask.DataF32, "f64": mask.DataF64, "i32": mask.DataI32, "i64": mask.DataI64}
var boundTypes = map[string]mask.BoundType{"b0": mask.B0, "b2": mask.B2, "b4": mask.B4, "b6": mask.B6, "bmax": mask.Bmax}
var modelTypes = map[string]mask.ModelType{"m3": mask.M3, "m6": mask.M6, "m9": mask.M9, "m12": mask.M12}

func parseMaskConfig(t maskTable) (mask.Config, error) {
	group, ok := groupTypes[t.GroupType]
	if !ok {
		return mask.Config{}, fmt.Errorf("config: unknown mask.group_type %q", t.GroupType)
	}
	data, ok := dataTypes[t.DataType]
	if !ok {
		return mask.Config{}, fmt.Errorf("config: unknown mask.data_type %q", t.DataType)
	}
	bound, ok := boundTypes[t.BoundType]
	if !ok {
		return mask.Config{}, fmt.Errorf("config: unknown mask.bound_type %q", t.BoundType)
	}
	model, ok := modelTypes[t.ModelType]
	if !ok {
		return mask.Config{}, fmt.Errorf("config: unknown mask.model_type %q", t.ModelType)
	}
	return mask.NewConfig(group, data, bound, model)
}

// Load reads and validates path, the way cmd/drand-cli/cli.go reads
// group.toml via toml.DecodeFile.
func Load(path string) (Config, error) {
	var f file
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	maskCfg, err := parseMaskConfig(f.Mask)
	if err != nil {
		return Config{}, err
	}

	petCfg, err := pet.NewConfig(
		f.Pet.SumProb, f.Pet.UpdateProb,
		f.Pet.Sum.toQuorumParams(), f.Pet.Update.toQuorumParams(), f.Pet.Sum2.toQuorumParams(),
		maskCfg, f.Model.Length,
	)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	return Config{
		Pet:         petCfg,
		BindAddress: f.API.BindAddress,
		TLSCert:     f.API.TLSCert,
		TLSKey:      f.API.TLSKey,
		TLSDisable:  f.API.TLSDisable,
	}, nil
}
