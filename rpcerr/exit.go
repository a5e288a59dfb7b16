package rpcerr

import "os"

func osExit(code int) { os.Exit(code) }
