// Matforge2go generates PBR texture sets with a diffusion model running in an
// isolated Python environment and turns each set into a shader material.
// It keeps the named paths the add-on needs, provisions the environment,
// launches the generator and builds the material graph from its output.
package matforge2go
