package guda

// Features of the GPU API that have no CPU counterpart here. Each reports an
// Unsupported error so callers can fall back instead of misbehaving.

// TextureObject stands in for a texture or surface handle.
type TextureObject uintptr

// CreateTextureObject is not supported.
func CreateTextureObject() (TextureObject, error) {
	return 0, defaultContext.setLastError(NewUnsupportedError("CreateTextureObject", "texture objects"))
}

// CreateSurfaceObject is not supported.
func CreateSurfaceObject() (TextureObject, error) {
	return 0, defaultContext.setLastError(NewUnsupportedError("CreateSurfaceObject", "surface objects"))
}

// ModuleLoad is not supported: kernels are Go functions, there are no code
// objects to load.
func ModuleLoad(path string) error {
	return defaultContext.setLastError(NewUnsupportedError("ModuleLoad", "module loading"))
}

// CtxCreate is not supported: use NewContext.
func CtxCreate() error {
	return defaultContext.setLastError(NewUnsupportedError("CtxCreate", "explicit driver contexts"))
}
