// Package hub fetches pretrained model artifacts from a Hugging Face style
// model repository and keeps them in a local or shared cache.
//
// Artifacts are addressed as <endpoint>/<id>/resolve/<revision>/<file> and
// stored in a storage.FileStore under <id>/<revision>/<file>. A manifest of
// what was fetched (sizes, SHA-256 digests, ETags) is kept in a kv.Store,
// msgpack-encoded. Once a manifest lists every requested file, Fetch serves
// from the cache without touching the network.
//
// Model metadata (label set, sample rate, normalisation) is discovered from
// the artifacts themselves:
//
//   - transformers layout: config.json (id2label) and
//     preprocessor_config.json (sampling_rate, do_normalize)
//   - SpeechBrain layout: label_encoder.txt ('us' => 0) and
//     hyperparams.yaml (sample_rate)
//
// Example:
//
//	c := hub.NewClient(files, manifests, hub.WithToken(os.Getenv("HF_TOKEN")))
//	m, err := c.Resolve(ctx, "Jzuluaga/accent-id-commonaccent_xlsr-en-english", "main")
package hub
