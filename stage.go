package tessera

import "github.com/tessera-ecs/tessera/mosaic"

// Stage is a per-worker deferred mutation buffer. Workers may record
// structural changes on their own stage while other goroutines read the
// same world; a single merge point replays all stages under exclusive
// access, typically between frames.
type Stage struct {
	world    *World
	commands *mosaic.Commands
}

func (w *World) NewStage() *Stage {
	return &Stage{
		world:    w,
		commands: mosaic.NewCommands(w.store),
	}
}

// Create reserves an entity id immediately; the entity materializes at
// merge time.
func (s *Stage) Create() EntityView {
	return EntityView{world: s.world, id: s.commands.Create()}
}

func (s *Stage) Add(e Entity, id Entity) {
	s.commands.Add(e, id)
}

func (s *Stage) AddPair(e Entity, rel, target Entity) {
	s.commands.Add(e, mosaic.MakePair(rel, target))
}

func (s *Stage) Remove(e Entity, id Entity) {
	s.commands.Remove(e, id)
}

func (s *Stage) Destruct(e Entity) {
	s.commands.Destruct(e)
}

// StageSet records a typed component write on the stage.
func StageSet[T any](s *Stage, e Entity, c Component[T], value T) {
	s.commands.Set(e, c.Id(), &value)
}

// Pending returns the number of buffered commands.
func (s *Stage) Pending() int {
	return s.commands.Len()
}

// Merge replays the buffered commands of the given stages in order. Must
// not run concurrently with any access to the world.
func (w *World) Merge(stages ...*Stage) {
	for _, stage := range stages {
		stage.commands.Merge()
	}
}
