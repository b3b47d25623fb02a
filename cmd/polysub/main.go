// Command polysub translates subtitle files into multiple languages at
// once, writing one subtitle file per target language next to the source.
package main

func main() {
	execute()
}
