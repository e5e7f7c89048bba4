package main

import (
	"io"
	"runtime"
	"text/template"
	"time"
)

type Report struct {
	Duration time.Duration
	Entities int
	Readers  int

	TotalTicks    int64
	TotalTime     time.Duration
	ReadBatches   int64
	TablesSwept   int
	TickTime      Stats
	MemStatsStart runtime.MemStats
	MemStatsEnd   runtime.MemStats
}

type Stats struct {
	Min     time.Duration
	Max     time.Duration
	Avg     time.Duration
	Samples []time.Duration
}

func (s *Stats) Finalize() {
	if len(s.Samples) == 0 {
		return
	}

	var total time.Duration
	s.Min = s.Samples[0]
	s.Max = s.Samples[0]

	for _, sample := range s.Samples {
		if sample < s.Min {
			s.Min = sample
		}
		if sample > s.Max {
			s.Max = sample
		}
		total += sample
	}
	s.Avg = total / time.Duration(len(s.Samples))
}

func (r *Report) Generate(w io.Writer) error {
	const reportTemplate = `
# Stress Report

## Scenario
- Run duration:     {{.Duration}}
- Initial entities: {{.Entities}}
- Reader workers:   {{.Readers}}

## Results
- Ticks completed:  {{.TotalTicks}}
- Wall time:        {{.TotalTime}}
- Reader batches:   {{.ReadBatches}}
- Tables swept:     {{.TablesSwept}}
- Tick time:        avg {{.TickTime.Avg}}, min {{.TickTime.Min}}, max {{.TickTime.Max}}

## Memory
- Heap alloc:  {{.MemStatsStart.HeapAlloc}} -> {{.MemStatsEnd.HeapAlloc}} (delta {{bsub .MemStatsEnd.HeapAlloc .MemStatsStart.HeapAlloc}})
- Total alloc: {{.MemStatsStart.TotalAlloc}} -> {{.MemStatsEnd.TotalAlloc}} (delta {{bsub .MemStatsEnd.TotalAlloc .MemStatsStart.TotalAlloc}})
- GC cycles:   {{usub .MemStatsEnd.NumGC .MemStatsStart.NumGC}}, total pause {{ns .MemStatsEnd.PauseTotalNs}}
`

	fm := template.FuncMap{
		"bsub": func(a, b uint64) int64 {
			return int64(a) - int64(b)
		},
		"usub": func(a, b uint32) uint32 {
			return a - b
		},
		"ns": func(ns uint64) string {
			return time.Duration(ns).String()
		},
	}

	tmpl, err := template.New("report").Funcs(fm).Parse(reportTemplate)
	if err != nil {
		return err
	}

	return tmpl.Execute(w, r)
}
