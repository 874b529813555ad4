package schema

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const spacer = "    "

func WriteChangeHeader(w io.Writer, name string, typename string) {
	var buf = bufio.NewWriter(w)
	buf.WriteString(fmt.Sprintf("[*] Changing the `%s` %s\n", name, typename))
	buf.Flush()
}

func WriteUnchangedHeader(w io.Writer, name string, typename string) {
	var buf = bufio.NewWriter(w)
	buf.WriteString(fmt.Sprintf("[=] The `%s` %s is up to date\n", name, typename))
	buf.Flush()
}

func WriteRemovedHeader(w io.Writer, name string, typename string) {
	var buf = bufio.NewWriter(w)
	buf.WriteString(fmt.Sprintf("[-] Removing the `%s` %s\n", name, typename))
	buf.Flush()
}

func WriteAddedHeader(w io.Writer, name string, typename string, extra ...string) {
	var buf = bufio.NewWriter(w)
	detail := strings.Join(extra, " ")
	buf.WriteString(strings.TrimRight(fmt.Sprintf("[+] Adding the `%s` %s %s", name, typename, detail), " ") + "\n")
	buf.Flush()
}

func WriteAddedLine(w io.Writer, typename string, value string, extra ...string) {
	var buf = bufio.NewWriter(w)
	detail := strings.Join(extra, " ")
	buf.WriteString(strings.TrimRight(fmt.Sprintf("    [+] Adding the %s `%s` %s", typename, value, detail), " ") + "\n")
	buf.Flush()
}
