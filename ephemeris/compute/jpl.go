package compute

import (
	"github.com/mshafiee/jpleph"
	"github.com/pkg/errors"
)

// jplEngine adapts the pure-Go JPL DE reader to the Engine interface.
// All touches of the jpleph surface are confined to this file.
type jplEngine struct {
	eph *jpleph.Ephemeris
}

// OpenJPL opens a DE-series ephemeris file (e.g. de440.bin) as an Engine.
func OpenJPL(path string) (Engine, error) {
	eph, err := jpleph.NewEphemeris(path, false)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open ephemeris file %s", path)
	}
	return &jplEngine{eph: eph}, nil
}

// State implements Engine.
func (e *jplEngine) State(jd float64, target, center Target) (StateVec, error) {
	pos, vel, err := e.eph.CalculatePV(jd, jpleph.Planet(target), jpleph.CenterBody(center), true)
	if err != nil {
		return StateVec{}, err
	}
	return StateVec{
		Pos: Vec3{pos.X, pos.Y, pos.Z},
		Vel: Vec3{vel.DX, vel.DY, vel.DZ},
	}, nil
}

// Close implements Engine.
func (e *jplEngine) Close() error {
	e.eph.Close()
	return nil
}
