// Package showroom manages product artwork textures in a navigable 3D
// store: which products have a texture resident, at what quality, and for
// how long.
//
// # Overview
//
// A virtual shop shows hundreds of products but can only keep a bounded
// number of artwork textures on the GPU. A Manager tracks every product
// object, classifies it each frame as on or off screen, picks a resolution
// tier from its distance to the camera, decodes artwork off the render
// goroutine, and evicts textures that are stale or over budget.
//
// # Quick Start
//
//	m, err := showroom.New(showroom.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//
//	id, _ := m.Register(shelfSlot, productMesh)
//
//	// every frame
//	m.UpdatePerformanceData(showroom.NewCamera(eye, proj, view))
//	m.ApplyTexture(id, showroom.Sources{
//	    showroom.SourceLibrary: libraryPNG,
//	    showroom.SourceIcon:    iconPNG,
//	}, showroom.ApplyOptions{})
//
//	// once a second
//	m.CleanupOffScreenTextures()
//
// # Tiers
//
// Distance selects the tier: at or inside NearDistance the High size is
// used, up to FarDistance the Medium size, beyond it the Low size. Images
// are scaled so their long edge matches the tier size and are never
// enlarged.
//
// # Loading
//
// ApplyTexture decides on the render goroutine and returns a Request.
// Requests for off-screen items are skipped when lazy loading is on.
// Requests for the tier already attached resolve at once. Everything else
// is decoded on a worker and applied by the next UpdatePerformanceData (or
// Reconcile). Results for items that were unregistered, or whose request
// was superseded by one for another tier, are discarded.
//
// Artwork variants are tried in SourcePriority order. A variant that is
// not an image or does not decode gives way to the next one. When the
// decode queue is full the request is skipped and the next frame can ask
// again; ApplyTexture never waits for a worker.
//
// A missing source, undecodable data, or a failed upload never reaches the
// render loop as an error: the surface shows the caller's fallback color
// or a shared neutral checker pattern, and the Request reports why.
//
// # Eviction
//
// CleanupOffScreenTextures unloads textures of items that have been off
// screen longer than StaleThreshold, then unloads the least recently seen
// off-screen textures until at most MaxActiveTextures remain. Textures of
// visible items are kept unless the OvershootEvictVisible policy is set.
//
// # Threading
//
// A Manager belongs to the render goroutine, Close included. Only decoding
// runs elsewhere.
package showroom
