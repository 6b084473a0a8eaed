package config

import "time"

const dataRoot = "/usr/local/var/kaiwa/data"

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// ApplyDefaults fills every unset field of cfg.
func ApplyDefaults(cfg *Config) {
	setDefault(&cfg.Server.Host, "localhost")
	setDefault(&cfg.Server.Port, 8080)

	st := &cfg.Storage
	setDefault(&st.Driver, DriverSQLite)
	setDefault(&st.DatabasePath, dataRoot+"/db/kaiwa.db")
	setDefault(&st.BleveIndexPath, dataRoot+"/indices/segments.bleve")

	em := &cfg.Embedding
	setDefault(&em.Provider, "onnx")
	setDefault(&em.ModelPath, dataRoot+"/models/all-MiniLM-L6-v2.onnx")
	setDefault(&em.Dimensions, 384)
	setDefault(&em.MaxTokens, 256)
	setDefault(&em.CacheSize, 10000)
	setDefault(&em.OpenAI.Model, "text-embedding-3-small")

	setDefault(&cfg.Segmentation.ThematicThreshold, 0.7)

	vz := &cfg.Vectorization
	setDefault(&vz.Workers, 1)
	setDefault(&vz.ChatLogInterval, 10)
	setDefault(&vz.MessageLogInterval, 50)
	setDefault(&vz.SegmentLogInterval, 20)
	setDefault(&vz.UpdateDebounce, time.Second)
	setDefault(&vz.QueueSize, 256)

	se := &cfg.Search
	setDefault(&se.DefaultLimit, 10)
	setDefault(&se.MaxLimit, 100)
	// weights are defaulted as a pair; an explicit 1/0 split must survive
	if se.VectorWeight == 0 && se.TextWeight == 0 {
		se.VectorWeight, se.TextWeight = 0.7, 0.3
	}
	setDefault(&se.SnippetLength, 200)
	setDefault(&se.CandidateMultiplier, 3)
	setDefault(&se.KeywordTitleBoost, 2.0)
}
