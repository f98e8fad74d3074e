package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/aravindthiru29/flipbook/internal/render"
	"github.com/aravindthiru29/flipbook/pkg/logger"
)

// pdfinfo inspects a PDF the way the service will: pdfcpu validation,
// MuPDF page count, outline, and optionally a trial render of one page.
func main() {
	pdfPath := flag.String("file", "", "path to PDF file")
	renderPage := flag.Int("render", -1, "page number to trial-render (optional)")
	out := flag.String("out", "page.jpg", "output path for the trial render")
	flag.Parse()

	if *pdfPath == "" {
		fmt.Println("Please provide a PDF file path using -file flag")
		os.Exit(1)
	}

	fmt.Printf("Analyzing PDF: %s\n", *pdfPath)

	if err := api.ValidateFile(*pdfPath, nil); err != nil {
		fmt.Printf("pdfcpu validation FAILED: %v\n", err)
	} else {
		fmt.Println("pdfcpu validation: OK")
	}

	if count, err := api.PageCountFile(*pdfPath); err != nil {
		fmt.Printf("pdfcpu page count error: %v\n", err)
	} else {
		fmt.Printf("pdfcpu page count: %d\n", count)
	}

	doc, err := render.OpenDocument(*pdfPath)
	if err != nil {
		fmt.Printf("Error opening PDF: %v\n", err)
		os.Exit(1)
	}
	defer doc.Close()

	fmt.Printf("MuPDF page count:  %d\n", doc.PageCount())

	toc, err := doc.TOC()
	if err != nil {
		fmt.Printf("Outline extraction error: %v\n", err)
	} else if len(toc) == 0 {
		fmt.Println("No outline.")
	} else {
		fmt.Printf("Outline (%d entries):\n", len(toc))
		for _, entry := range toc {
			fmt.Printf("  L%d page %d: %s\n", entry.Level, entry.Page, entry.Title)
		}
	}

	if *renderPage >= 0 {
		log := logger.New(logger.WithPrefix("[pdfinfo] "))
		log.SetVerbose(true)

		renderer := render.NewRenderer(render.DefaultTiers, log)
		data, err := renderer.RenderPage(doc, *renderPage)
		if err != nil {
			fmt.Printf("Render error for page %d: %v\n", *renderPage, err)
			os.Exit(1)
		}
		if err := os.WriteFile(*out, data, 0644); err != nil {
			fmt.Printf("Error writing %s: %v\n", *out, err)
			os.Exit(1)
		}
		fmt.Printf("Rendered page %d (%d bytes) to %s\n", *renderPage, len(data), *out)
	}
}
