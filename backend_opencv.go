//go:build opencv

package main

import _ "recognition-server/faces/yunet"
