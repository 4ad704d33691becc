// rategate é a ferramenta de linha de comando para exercitar o RateGate
// fora do gateway HTTP.
//
// Uso:
//
//	# 20 goroutines disputando 5 entradas por 100ms durante 2s
//	rategate probe --occurrences 5 --window 100ms --callers 20 --duration 2s
//
//	# repassa linhas do stdin no máximo 10 por segundo
//	tail -f app.log | rategate throttle --occurrences 10 --window 1s
package main

func main() {
	Execute()
}
