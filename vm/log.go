package vm

import "github.com/tliron/commonlog"

var (
	vmLog        = commonlog.GetLogger("indy.vm")
	speciesLog   = commonlog.GetLogger("indy.species")
	compilerLog  = commonlog.GetLogger("indy.compiler")
	bootstrapLog = commonlog.GetLogger("indy.bootstrap")
	linkerLog    = commonlog.GetLogger("indy.linker")
)
