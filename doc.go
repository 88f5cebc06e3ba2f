// Package sound2scene turns short audio clips into photorealistic scene
// images: the clip is classified against a fixed taxonomy of audio scenes, a
// generation prompt is built from the winning scene, and an external
// text-to-image backend renders it.
//
// # Quick Start
//
//	ctx := context.Background()
//
//	p, _ := sound2scene.New(embedder, generator)
//	scene, _ := p.SceneImage(ctx, pcm)
//	fmt.Println(scene.Label, scene.Prompt, len(scene.Image))
//
// Classification alone, without rendering:
//
//	result, _ := p.Analyze(ctx, pcm)
//	fmt.Println(result.Label, result.Confidence)
//
// # Similarity Index
//
// Clips can be added to an embedded similarity index and retrieved later by
// text or audio query:
//
//	id, _ := p.IndexClip(ctx, pcm, "s3://clips/0042.wav")
//	hits, _ := p.SearchText(ctx, "rain on a tin roof", 5)
//
// With a snapshot path configured, the index survives restarts:
//
//	p, _ := sound2scene.New(embedder, generator,
//	    sound2scene.WithSnapshotPath("./data/index.snap"),
//	)
//	defer p.Close(ctx)  // persists the index
//
// # External Capabilities
//
// The three model backends are interfaces supplied by the caller:
// embedding.JointEmbedder (contrastive audio/text model),
// generate.Generator (text-to-image), and optionally
// transcribe.Transcriber (speech-to-text). The library never talks to a
// model server itself.
package sound2scene
