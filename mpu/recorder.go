package mpu

import (
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/mpukernel/memcore/fpage"
	"github.com/mpukernel/memcore/mempool"
)

// Region is the programmed state of one MPU region
type Region struct {
	Index   int
	Enabled bool
	Base    uint32
	Size    uint64
	Pool    mempool.ID
	Perm    mempool.Perm
	Always  bool
}

func (r Region) String() string {
	if !r.Enabled {
		return fmt.Sprintf("region %d: disabled", r.Index)
	}
	return fmt.Sprintf("region %d: [%#08x:%#08x] %s", r.Index, r.Base, uint64(r.Base)+r.Size, r.Perm)
}

// Recorder is a Programmer that keeps the programmed regions in memory instead of writing
// hardware registers
type Recorder struct {
	Regions [RegionCount]Region
	Enabled bool
	// Passes counts how many times the MPU was enabled
	Passes int
}

func (r *Recorder) SetupRegion(n int, fp *fpage.Fpage) {
	if n < 0 || n >= RegionCount {
		return
	}

	if fp == nil {
		r.Regions[n] = Region{Index: n, Pool: mempool.Unknown}
		return
	}

	r.Regions[n] = Region{
		Index:   n,
		Enabled: true,
		Base:    fp.Base,
		Size:    fp.Size(),
		Pool:    fp.Pool,
		Perm:    fp.Perm,
		Always:  fp.IsAlways(),
	}
}

func (r *Recorder) Enable(enabled bool) {
	r.Enabled = enabled
	if enabled {
		r.Passes++
	}
}

// Covers reports whether an enabled region contains addr
func (r *Recorder) Covers(addr uint32) bool {
	for _, region := range r.Regions {
		if region.Enabled && region.Base <= addr && uint64(addr) < uint64(region.Base)+region.Size {
			return true
		}
	}
	return false
}

// WriteJSON writes the recorded regions as a json array
func (r *Recorder) WriteJSON(writer *jwriter.Writer) {
	arr := writer.Array()
	for _, region := range r.Regions {
		obj := arr.Object()
		obj.Name("Index").Int(region.Index)
		obj.Name("Enabled").Bool(region.Enabled)
		if region.Enabled {
			obj.Name("Base").Int(int(region.Base))
			obj.Name("Size").Int(int(region.Size))
			obj.Name("Pool").Int(int(region.Pool))
			obj.Name("Perm").String(region.Perm.String())
			obj.Name("Always").Bool(region.Always)
		}
		obj.End()
	}
	arr.End()
}
