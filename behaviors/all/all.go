// Package all links every behavior builder into the binary.
package all

import (
	_ "kbdcode-go/behaviors/basic"
	_ "kbdcode-go/behaviors/transto"
)
