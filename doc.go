// Package gorawrgallery is the image engine behind a listing gallery: it
// turns storage paths into canonical URLs, shares one fetch per image across
// every card and preloader that wants it, keeps a bounded set of decoded
// images, shows them progressively as cards scroll into view, and lets go of
// them when the host is under memory pressure.
//
// Construct one Engine at the application root and hand it to the UI:
//
//	eng, err := gorawrgallery.NewEngine(
//		gorawrgallery.WithOrigin("https://gallery.example.com"),
//		gorawrgallery.WithMaxEntries(300),
//	)
//	if err != nil {
//		return err
//	}
//	defer eng.Close()
//	go eng.Run(ctx)
//
//	for _, l := range page {
//		path, _ := l.BestImagePath()
//		r := eng.NewRenderer(visibility.ID("card-"+l.ID), path)
//		r.Start(ctx)
//	}
package gorawrgallery
